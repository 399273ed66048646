// Package api is the HTTP surface: verification, subscription, catalog,
// health, and the live log channel.
package api

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"gardenalert/internal/compose"
	"gardenalert/internal/logbus"
	"gardenalert/internal/monitor"
	"gardenalert/internal/store"
)

// EmailRequest is the body of POST /request-verification.
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SubscribeRequest is the body of POST /subscribe.
type SubscribeRequest struct {
	Email string   `json:"email" validate:"required,email"`
	Items []string `json:"items" validate:"required,min=1,dive,required"`
}

type Options struct {
	Store    *store.Store
	Composer *compose.Composer
	Sender   monitor.Sender
	Monitor  *monitor.Monitor
	Hub      *logbus.Hub
	Validate *validator.Validate
	Logger   *zap.Logger

	WebDir         string
	RequestTimeout time.Duration
	StartedAt      time.Time
	Now            func() time.Time
}

// Handler wraps the HTTP handlers with their dependencies.
type Handler struct {
	store    *store.Store
	composer *compose.Composer
	sender   monitor.Sender
	monitor  *monitor.Monitor
	hub      *logbus.Hub
	validate *validator.Validate
	log      *zap.Logger

	webDir    string
	timeout   time.Duration
	startedAt time.Time
	now       func() time.Time
}

func New(opts Options) *Handler {
	if opts.Validate == nil {
		opts.Validate = validator.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = opts.Now()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.WebDir == "" {
		opts.WebDir = "web"
	}
	return &Handler{
		store:     opts.Store,
		composer:  opts.Composer,
		sender:    opts.Sender,
		monitor:   opts.Monitor,
		hub:       opts.Hub,
		validate:  opts.Validate,
		log:       opts.Logger,
		webDir:    opts.WebDir,
		timeout:   opts.RequestTimeout,
		startedAt: opts.StartedAt,
		now:       opts.Now,
	}
}

// Routes builds the router. The log channel sits outside the request
// timeout since its connections are long-lived.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	if h.hub != nil {
		r.Get("/ws", h.hub.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(h.timeout))

		r.Get("/", h.Index)
		r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(h.webDir))))

		r.Get("/check-verification", h.CheckVerification)
		r.Post("/request-verification", h.RequestVerification)
		r.Get("/verify", h.Verify)
		r.Post("/subscribe", h.Subscribe)
		r.Get("/unsub", h.Unsubscribe)

		r.Get("/refresh-items", h.RefreshItems)
		r.Get("/get-items", h.GetItems)
		r.Get("/health", h.Health)
	})
	return r
}

// Index serves the log viewer and subscription page (no-cache).
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(h.webDir, "index.html"))
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
