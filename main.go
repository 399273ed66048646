// Command gardenalert watches the game's shop stock and weather and emails
// subscribers when something they care about shows up.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gardenalert/internal/alerts"
	"gardenalert/internal/api"
	"gardenalert/internal/compose"
	"gardenalert/internal/config"
	"gardenalert/internal/game"
	"gardenalert/internal/logbus"
	"gardenalert/internal/logger"
	"gardenalert/internal/mailer"
	"gardenalert/internal/monitor"
	"gardenalert/internal/store"
	"gardenalert/internal/upstream"
)

func newRootCmd() *cobra.Command {
	var configPath, envFile string
	root := &cobra.Command{
		Use:           "gardenalert",
		Short:         "Email alerts for shop stock and weather events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml (missing file = defaults)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	var port int
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and the web UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.ServerPort = port
			}
			return Run(cmd.Context(), cfg)
		},
	}
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "override server_port")
	root.AddCommand(serveCmd)

	var to string
	testCmd := &cobra.Command{
		Use:   "test-email",
		Short: "Send a sample stock and weather email through the configured relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			return sendTestEmails(cmd.Context(), cfg, to, cmd.OutOrStdout())
		},
	}
	testCmd.Flags().StringVarP(&to, "to", "t", "", "recipient address (required)")
	_ = testCmd.MarkFlagRequired("to")
	root.AddCommand(testCmd)

	return root
}

// Run wires every component from cfg and blocks until ctx is done or the
// HTTP server fails.
func Run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	hub := logbus.NewHub(cfg.Logging.History)
	log := logger.New(cfg.Env, cfg.Logging.Level, hub.Core(level))
	defer func() { _ = log.Sync() }()
	log.Info("starting gardenalert",
		zap.String("env", cfg.Env),
		zap.String("mode", cfg.Upstream.Mode),
		zap.Bool("mock_mail", cfg.Mail.Mock))

	var persister store.Persister
	if path := cfg.Persistence.SQLitePath; path != "" {
		db, err := store.OpenSQLite(ctx, path)
		if err != nil {
			return err
		}
		defer db.Close()
		persister = db
		log.Info("persisting subscriptions", zap.String("sqlite", path))
	}
	st := store.New(store.Options{
		RequireVerification: cfg.Subscriptions.RequireVerification,
		TokenTTL:            cfg.Subscriptions.TokenTTL,
		Persister:           persister,
		Logger:              log.Named("store"),
	})
	if err := st.Load(ctx); err != nil {
		return err
	}
	go st.RunSweeper(ctx, cfg.Subscriptions.SweepInterval)

	relay, err := newRelay(ctx, cfg, log.Named("mailer"))
	if err != nil {
		return err
	}
	audit, err := alerts.NewLog(cfg.Audit.Dir)
	if err != nil {
		return err
	}
	notifier := mailer.NewNotifier(relay, mailer.NotifierOptions{
		Timeout: cfg.Mail.SendTimeout,
		Audit:   audit,
		Logger:  log.Named("mailer"),
	})

	catalog := game.NewCatalog(cfg.Upstream.IconURLTemplate)
	composer := compose.New(cfg.BaseURL, catalog)
	fetcher := upstream.NewCatalogFetcher(upstream.CatalogConfig{
		URL:          cfg.Upstream.InfoURL,
		Key:          cfg.Upstream.Key,
		Timeout:      cfg.Upstream.RequestTimeout,
		Retries:      cfg.Upstream.CatalogRetries,
		RetryWait:    cfg.Upstream.CatalogRetryWait,
		RetryMaxWait: cfg.Upstream.CatalogRetryMaxWait,
	}, log.Named("catalog"))
	mon := monitor.New(monitor.Options{
		Store:    st,
		Composer: composer,
		Sender:   notifier,
		Catalog:  catalog,
		Fetcher:  fetcher,
		Logger:   log.Named("monitor"),
	})

	h := api.New(api.Options{
		Store:          st,
		Composer:       composer,
		Sender:         notifier,
		Monitor:        mon,
		Hub:            hub,
		Validate:       validator.New(),
		Logger:         log.Named("http"),
		WebDir:         cfg.WebDir,
		RequestTimeout: 30 * time.Second,
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	monDone := make(chan struct{})
	go func() {
		defer close(monDone)
		_ = mon.Run(ctx, newSource(cfg, log.Named("upstream")))
	}()
	log.Info("UI ready", zap.String("url", cfg.BaseURL), zap.String("addr", cfg.Addr()))

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errc:
		runErr = fmt.Errorf("http server: %w", err)
		log.Error("http server failed", zap.Error(err))
	}

	log.Info("shutting down")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	<-monDone
	notifier.Close()
	sent, failed := notifier.Stats()
	log.Info("stopped", zap.Int64("emails_sent", sent), zap.Int64("emails_failed", failed))
	return runErr
}

// newRelay picks the mail relay. A real relay must answer before we start.
func newRelay(ctx context.Context, cfg *config.Config, log *zap.Logger) (mailer.Relay, error) {
	if cfg.Mail.Mock {
		log.Warn("mail mock mode: emails are logged, not sent")
		return mailer.NewLogRelay(log), nil
	}
	relay := mailer.NewSMTPRelay(mailer.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		TLS:      cfg.Mail.TLS,
		Timeout:  cfg.Mail.SendTimeout,
	})
	if err := mailer.VerifyRelay(ctx, relay, cfg.Mail.SendTimeout); err != nil {
		return nil, fmt.Errorf("mail relay check failed: %w", err)
	}
	log.Info("mail relay ready", zap.String("host", cfg.Mail.Host), zap.Int("port", cfg.Mail.Port))
	return relay, nil
}

func newSource(cfg *config.Config, log *zap.Logger) upstream.Source {
	if cfg.Upstream.Mode == config.ModeStream {
		return upstream.NewStreamer(upstream.StreamerConfig{
			URL:     cfg.Upstream.StreamURL,
			Key:     cfg.Upstream.Key,
			Backoff: cfg.Upstream.ReconnectBackoff,
		}, log)
	}
	return upstream.NewPoller(upstream.PollerConfig{
		StockURL:   cfg.Upstream.StockURL,
		WeatherURL: cfg.Upstream.WeatherURL,
		Interval:   cfg.Upstream.PollInterval,
		Timeout:    cfg.Upstream.RequestTimeout,
		Key:        cfg.Upstream.Key,
	}, log)
}

// sendTestEmails mails one sample stock alert and one sample weather alert.
func sendTestEmails(ctx context.Context, cfg *config.Config, to string, out io.Writer) error {
	log := logger.New(cfg.Env, cfg.Logging.Level)
	defer func() { _ = log.Sync() }()

	relay, err := newRelay(ctx, cfg, log.Named("mailer"))
	if err != nil {
		return err
	}
	n := mailer.NewNotifier(relay, mailer.NotifierOptions{Timeout: cfg.Mail.SendTimeout, Logger: log.Named("mailer")})
	defer n.Close()

	composer := compose.New(cfg.BaseURL, game.NewCatalog(cfg.Upstream.IconURLTemplate))
	snap := game.StockSnapshot{
		game.CategorySeed: {{ItemID: "carrot", DisplayName: "Carrot", Quantity: 5}},
		game.CategoryGear: {{ItemID: "basic_sprinkler", Quantity: 2}},
	}
	stockMsg, _, err := composer.Stock(to, []string{"carrot", "basic_sprinkler"}, snap)
	if err != nil {
		return err
	}
	weatherMsg, err := composer.Weather(to, game.WeatherEvent{
		WeatherID: "rain", WeatherName: "Rain", Active: true, Duration: 300,
	})
	if err != nil {
		return err
	}

	batch := mailer.NewBatch()
	var failed int
	for _, msg := range []mailer.Message{stockMsg, weatherMsg} {
		msg.Kind = mailer.KindTest
		msg.Batch = batch
		if err := n.Send(msg).Wait(ctx); err != nil {
			failed++
			fmt.Fprintf(out, "FAILED %s: %v\n", msg.Subject, err)
			continue
		}
		fmt.Fprintf(out, "sent %q to %s\n", msg.Subject, to)
	}
	if failed > 0 {
		return fmt.Errorf("%d of 2 test emails failed", failed)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
