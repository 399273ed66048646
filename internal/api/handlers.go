package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"gardenalert/internal/apperror"
	"gardenalert/internal/game"
	"gardenalert/internal/store"
)

const maxBodyBytes = 64 << 10

type result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type itemsResponse struct {
	Success bool                `json:"success"`
	Count   int                 `json:"count"`
	Items   []game.CatalogEntry `json:"items"`
}

type healthResponse struct {
	Status              string     `json:"status"`
	UptimeSeconds       int64      `json:"uptime_seconds"`
	StartedAt           time.Time  `json:"started_at"`
	Subscriptions       int        `json:"subscriptions"`
	Verified            int        `json:"verified"`
	Pending             int        `json:"pending"`
	RequireVerification bool       `json:"require_verification"`
	LogClients          int        `json:"log_clients"`
	CatalogItems        int        `json:"catalog_items"`
	LastStockAt         *time.Time `json:"last_stock_at"`
	LastWeatherAt       *time.Time `json:"last_weather_at"`
	ActiveWeather       string     `json:"active_weather,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, result{Success: false, Message: msg})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		h.log.Warn("failed to decode json", zap.String("path", r.URL.Path), zap.Error(err))
		fail(w, http.StatusBadRequest, "invalid request payload")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.log.Warn("validation failed", zap.String("path", r.URL.Path), zap.Error(err))
		fail(w, http.StatusBadRequest, apperror.ValidationMessage(err))
		return false
	}
	return true
}

// CheckVerification reports whether an email has been verified.
func (h *Handler) CheckVerification(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		fail(w, http.StatusBadRequest, "email is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": h.store.IsVerified(email)})
}

// RequestVerification issues a token and mails the verification link.
func (h *Handler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, &req) {
		return
	}
	email := store.NormalizeEmail(req.Email)
	token, err := h.store.RequestVerification(email)
	switch {
	case errors.Is(err, store.ErrAlreadySubscribed):
		fail(w, http.StatusBadRequest, "This email is already subscribed.")
		return
	case err != nil:
		h.log.Error("token generation failed", zap.Error(err))
		fail(w, http.StatusInternalServerError, "Could not start verification. Try again later.")
		return
	}

	msg, err := h.composer.Verification(email, token)
	if err != nil {
		h.log.Error("compose verification email failed", zap.String("to", email), zap.Error(err))
		fail(w, http.StatusInternalServerError, "Could not send verification email.")
		return
	}
	h.sender.Send(msg)
	h.log.Info("verification requested", zap.String("email", email))
	writeJSON(w, http.StatusOK, result{Success: true, Message: "Verification email sent. Check your inbox."})
}

// Verify consumes the token from a verification link.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := store.NormalizeEmail(q.Get("email"))
	token := strings.TrimSpace(q.Get("token"))
	if email == "" || token == "" {
		http.Error(w, "Missing email or token.", http.StatusBadRequest)
		return
	}
	if err := h.store.Verify(email, token); err != nil {
		h.log.Warn("verification failed", zap.String("email", email), zap.Error(err))
		http.Error(w, verifyFailure(err), http.StatusBadRequest)
		return
	}
	h.log.Info("email verified", zap.String("email", email))
	http.Redirect(w, r, "/?verified=true&email="+url.QueryEscape(email), http.StatusFound)
}

func verifyFailure(err error) string {
	switch {
	case errors.Is(err, store.ErrTokenExpired):
		return "This verification link has expired. Request a new one."
	case errors.Is(err, store.ErrNoPending):
		return "No pending verification for this email. Request a new link."
	default:
		return "Invalid verification link."
	}
}

// Subscribe replaces the watch set of a verified email.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !h.decode(w, r, &req) {
		return
	}
	email := store.NormalizeEmail(req.Email)
	err := h.store.Subscribe(email, req.Items)
	switch {
	case errors.Is(err, store.ErrNotVerified):
		fail(w, http.StatusForbidden, "Verify your email before subscribing.")
		return
	case errors.Is(err, store.ErrNoItems):
		fail(w, http.StatusBadRequest, "items must contain at least one item")
		return
	case err != nil:
		h.log.Error("subscribe failed", zap.String("email", email), zap.Error(err))
		fail(w, http.StatusInternalServerError, "Could not save subscription.")
		return
	}
	items, _ := h.store.Subscription(email)
	h.log.Info("subscribed", zap.String("email", email), zap.Strings("items", items))
	writeJSON(w, http.StatusOK, result{
		Success: true,
		Message: fmt.Sprintf("Subscribed to %d item(s).", len(items)),
	})
}

// Unsubscribe drops the subscription and verification for an email.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email := store.NormalizeEmail(r.URL.Query().Get("email"))
	if email == "" {
		http.Error(w, "Missing email.", http.StatusBadRequest)
		return
	}
	if err := h.store.Unsubscribe(email); err != nil {
		http.Error(w, "Email not found.", http.StatusNotFound)
		return
	}
	h.log.Info("unsubscribed", zap.String("email", email))
	http.Redirect(w, r, "/?unsubscribed=true", http.StatusFound)
}

// RefreshItems forces a catalog fetch.
func (h *Handler) RefreshItems(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.RefreshCatalog(r.Context()); err != nil {
		fail(w, http.StatusBadGateway, "Could not refresh items: "+apperror.Message(err))
		return
	}
	h.writeItems(w)
}

// GetItems returns the catalog, starting a background refresh when empty.
func (h *Handler) GetItems(w http.ResponseWriter, r *http.Request) {
	if h.monitor.Catalog().Len() == 0 {
		h.monitor.RefreshCatalogAsync(context.WithoutCancel(r.Context()))
	}
	h.writeItems(w)
}

func (h *Handler) writeItems(w http.ResponseWriter) {
	items := h.monitor.Catalog().Entries()
	writeJSON(w, http.StatusOK, itemsResponse{Success: true, Count: len(items), Items: items})
}

// Health reports uptime and in-memory counts.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	c := h.store.Counts()
	out := healthResponse{
		Status:              "ok",
		UptimeSeconds:       int64(now.Sub(h.startedAt) / time.Second),
		StartedAt:           h.startedAt,
		Subscriptions:       c.Subscriptions,
		Verified:            c.Verified,
		Pending:             c.Pending,
		RequireVerification: h.store.RequireVerification(),
	}
	if h.hub != nil {
		out.LogClients = h.hub.Clients()
	}
	if h.monitor != nil {
		out.CatalogItems = h.monitor.Catalog().Len()
		out.LastStockAt = timePtr(h.monitor.LastStockAt())
		out.LastWeatherAt = timePtr(h.monitor.LastWeatherAt())
		out.ActiveWeather = h.monitor.ActiveWeather()
	}
	writeJSON(w, http.StatusOK, out)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
