// Package config loads config.yaml, .env and environment secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"gardenalert/internal/apperror"
	"gardenalert/internal/game"
)

// EnvPrefix namespaces every environment variable read by envconfig.
const EnvPrefix = "GARDENALERT"

const (
	ModePoll   = "poll"
	ModeStream = "stream"
)

type Config struct {
	ServerPort int    `yaml:"server_port"`
	Env        string `yaml:"env"`
	BaseURL    string `yaml:"base_url"`
	WebDir     string `yaml:"web_dir"`

	Upstream struct {
		Mode                string        `yaml:"mode"` // poll | stream
		StockURL            string        `yaml:"stock_url"`
		WeatherURL          string        `yaml:"weather_url"`
		StreamURL           string        `yaml:"stream_url"`
		InfoURL             string        `yaml:"info_url"`
		IconURLTemplate     string        `yaml:"icon_url_template"`
		PollInterval        time.Duration `yaml:"poll_interval"`
		ReconnectBackoff    time.Duration `yaml:"reconnect_backoff"`
		RequestTimeout      time.Duration `yaml:"request_timeout"`
		CatalogRetries      int           `yaml:"catalog_retries"`
		CatalogRetryWait    time.Duration `yaml:"catalog_retry_wait"`
		CatalogRetryMaxWait time.Duration `yaml:"catalog_retry_max_wait"`
		Key                 string        `yaml:"-"`
	} `yaml:"upstream"`

	Mail struct {
		Host        string        `yaml:"host"`
		Port        int           `yaml:"port"`
		From        string        `yaml:"from"`
		Mock        bool          `yaml:"mock"`
		TLS         string        `yaml:"tls"` // mandatory | opportunistic | none
		SendTimeout time.Duration `yaml:"send_timeout"`
		Username    string        `yaml:"-"`
		Password    string        `yaml:"-"`
	} `yaml:"mail"`

	Subscriptions struct {
		RequireVerification bool          `yaml:"require_verification"`
		TokenTTL            time.Duration `yaml:"token_ttl"`
		SweepInterval       time.Duration `yaml:"sweep_interval"`
	} `yaml:"subscriptions"`

	Persistence struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"persistence"`

	Audit struct {
		Dir string `yaml:"dir"`
	} `yaml:"audit"`

	Logging struct {
		Level   string `yaml:"level"`
		History int    `yaml:"history"`
	} `yaml:"logging"`
}

// secrets are only ever read from the environment.
type secrets struct {
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT"`
	MailFrom     string `envconfig:"MAIL_FROM"`
	UpstreamKey  string `envconfig:"UPSTREAM_KEY"`
	Port         int    `envconfig:"PORT"`
	Env          string `envconfig:"ENV"`
}

// Default returns a config with every tunable populated.
func Default() *Config {
	c := &Config{
		ServerPort: 3000,
		Env:        "development",
		BaseURL:    "http://localhost:3000",
		WebDir:     "web",
	}
	c.Upstream.Mode = ModePoll
	c.Upstream.StockURL = "https://api.joshlei.com/v2/growagarden/stock"
	c.Upstream.WeatherURL = "https://api.joshlei.com/v2/growagarden/weather"
	c.Upstream.StreamURL = "wss://websocket.joshlei.com/growagarden"
	c.Upstream.InfoURL = "https://api.joshlei.com/v2/growagarden/info"
	c.Upstream.IconURLTemplate = game.DefaultIconTemplate
	c.Upstream.PollInterval = 15 * time.Second
	c.Upstream.ReconnectBackoff = 5 * time.Second
	c.Upstream.RequestTimeout = 15 * time.Second
	c.Upstream.CatalogRetries = 3
	c.Upstream.CatalogRetryWait = time.Second
	c.Upstream.CatalogRetryMaxWait = 8 * time.Second

	c.Mail.Host = "smtp.gmail.com"
	c.Mail.Port = 587
	c.Mail.TLS = "mandatory"
	c.Mail.SendTimeout = 20 * time.Second

	c.Subscriptions.RequireVerification = true
	c.Subscriptions.TokenTTL = 24 * time.Hour
	c.Subscriptions.SweepInterval = time.Hour

	c.Logging.Level = "info"
	c.Logging.History = 200
	return c
}

// Load reads envFile (optional), then path (optional), then environment
// secrets, and validates the result.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, apperror.Configuration("load "+envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		if err := loadYAML(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, apperror.Configuration("load "+path, err)
		}
	}

	var s secrets
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, apperror.Configuration("environment", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, out)
}

func (c *Config) applySecrets(s secrets) {
	c.Mail.Username = strings.TrimSpace(s.SMTPUsername)
	c.Mail.Password = s.SMTPPassword
	if s.SMTPHost != "" {
		c.Mail.Host = s.SMTPHost
	}
	if s.SMTPPort > 0 {
		c.Mail.Port = s.SMTPPort
	}
	if s.MailFrom != "" {
		c.Mail.From = s.MailFrom
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.Username
	}
	c.Upstream.Key = s.UpstreamKey
	if s.Port > 0 {
		c.ServerPort = s.Port
	}
	if s.Env != "" {
		c.Env = s.Env
	}
}

// Validate rejects configs the service cannot start with.
func (c *Config) Validate() error {
	var problems []string
	switch c.Upstream.Mode {
	case ModePoll:
		if c.Upstream.StockURL == "" || c.Upstream.WeatherURL == "" {
			problems = append(problems, "upstream.stock_url and upstream.weather_url are required in poll mode")
		}
		if c.Upstream.PollInterval <= 0 {
			problems = append(problems, "upstream.poll_interval must be positive")
		}
	case ModeStream:
		if c.Upstream.StreamURL == "" {
			problems = append(problems, "upstream.stream_url is required in stream mode")
		}
		if c.Upstream.ReconnectBackoff <= 0 {
			problems = append(problems, "upstream.reconnect_backoff must be positive")
		}
	default:
		problems = append(problems, fmt.Sprintf("upstream.mode %q must be %q or %q", c.Upstream.Mode, ModePoll, ModeStream))
	}
	if c.Upstream.RequestTimeout <= 0 {
		problems = append(problems, "upstream.request_timeout must be positive")
	}
	if c.Upstream.CatalogRetries < 0 {
		problems = append(problems, "upstream.catalog_retries must not be negative")
	}
	if !c.Mail.Mock {
		if c.Mail.Username == "" || c.Mail.Password == "" {
			problems = append(problems, EnvPrefix+"_SMTP_USERNAME and "+EnvPrefix+"_SMTP_PASSWORD must be set")
		}
		if c.Mail.Host == "" || c.Mail.Port <= 0 {
			problems = append(problems, "mail.host and mail.port are required")
		}
	}
	switch c.Mail.TLS {
	case "mandatory", "opportunistic", "none":
	default:
		problems = append(problems, fmt.Sprintf("mail.tls %q must be mandatory, opportunistic or none", c.Mail.TLS))
	}
	if c.Mail.SendTimeout <= 0 {
		problems = append(problems, "mail.send_timeout must be positive")
	}
	if c.Subscriptions.TokenTTL <= 0 || c.Subscriptions.SweepInterval <= 0 {
		problems = append(problems, "subscriptions.token_ttl and subscriptions.sweep_interval must be positive")
	}
	if c.ServerPort <= 0 {
		problems = append(problems, "server_port must be positive")
	}
	if len(problems) > 0 {
		return apperror.Configuration("validate", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.ServerPort) }
