package upstream

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"gardenalert/internal/apperror"
	"gardenalert/internal/game"
)

type CatalogConfig struct {
	URL          string
	Key          string
	Timeout      time.Duration
	Retries      int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// CatalogFetcher loads item metadata with bounded exponential retry.
type CatalogFetcher struct {
	url  string
	http *resty.Client
	log  *zap.Logger
}

func NewCatalogFetcher(cfg CatalogConfig, log *zap.Logger) *CatalogFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := newHTTPClient(cfg.Timeout, cfg.Key).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		AddRetryHook(func(r *resty.Response, err error) {
			attempt, status := 0, 0
			if r != nil {
				status = r.StatusCode()
				if r.Request != nil {
					attempt = r.Request.Attempt
				}
			}
			log.Warn("catalog fetch retrying", zap.Int("attempt", attempt), zap.Int("status", status), zap.Error(err))
		})
	return &CatalogFetcher{url: cfg.URL, http: c, log: log}
}

// Fetch returns the current catalog entries.
func (f *CatalogFetcher) Fetch(ctx context.Context) ([]game.CatalogEntry, error) {
	body, err := getJSON(ctx, f.http, f.url)
	if err != nil {
		return nil, apperror.UpstreamFetch("catalog", err)
	}
	entries, err := game.DecodeCatalog(body)
	if err != nil {
		return nil, apperror.UpstreamFetch("catalog", err)
	}
	return entries, nil
}

// Refresh fetches and swaps the catalog. On failure the catalog keeps its
// previous contents and display enrichment falls back to item ids.
func (f *CatalogFetcher) Refresh(ctx context.Context, c *game.Catalog) error {
	entries, err := f.Fetch(ctx)
	if err != nil {
		f.log.Warn("catalog refresh failed, keeping previous catalog", zap.Error(err), zap.Int("items", c.Len()))
		return err
	}
	c.Replace(entries)
	f.log.Info("catalog refreshed", zap.Int("items", len(entries)))
	return nil
}
