package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"gardenalert/internal/apperror"
	"gardenalert/internal/game"
)

type PollerConfig struct {
	StockURL   string
	WeatherURL string
	Interval   time.Duration
	Timeout    time.Duration
	Key        string
}

// Poller fetches both feeds on a fixed interval. A failed feed is skipped
// until the next tick.
type Poller struct {
	cfg  PollerConfig
	http *resty.Client
	log  *zap.Logger
}

func NewPoller(cfg PollerConfig, log *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Poller{cfg: cfg, http: newHTTPClient(cfg.Timeout, cfg.Key), log: log}
}

func newHTTPClient(timeout time.Duration, key string) *resty.Client {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if key != "" {
		c.SetHeader(keyHeader, key)
	}
	return c
}

func (p *Poller) Run(ctx context.Context, sink Sink) error {
	p.log.Info("polling upstream",
		zap.String("stock_url", p.cfg.StockURL),
		zap.String("weather_url", p.cfg.WeatherURL),
		zap.Duration("interval", p.cfg.Interval))
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx, sink)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx, sink)
		}
	}
}

func (p *Poller) tick(ctx context.Context, sink Sink) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("poll tick panicked", zap.String("panic", fmt.Sprint(r)))
		}
	}()
	payload, err := p.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn("upstream fetch failed", zap.Error(err))
	}
	if !payload.Empty() {
		deliver(p.log, sink, payload)
	}
}

// Fetch retrieves both feeds once. The payload holds whichever feeds
// succeeded; err joins the failures.
func (p *Poller) Fetch(ctx context.Context) (game.Payload, error) {
	payload := game.Payload{ReceivedAt: time.Now()}
	var errs []error

	if body, err := p.get(ctx, p.cfg.StockURL); err != nil {
		errs = append(errs, apperror.UpstreamFetch("stock", err))
	} else if snap, err := game.DecodeStock(body); err != nil {
		errs = append(errs, apperror.UpstreamFetch("stock", err))
	} else {
		payload.Stock = snap
	}

	if body, err := p.get(ctx, p.cfg.WeatherURL); err != nil {
		errs = append(errs, apperror.UpstreamFetch("weather", err))
	} else if w, err := game.DecodeWeather(body); err != nil {
		errs = append(errs, apperror.UpstreamFetch("weather", err))
	} else {
		payload.Weather = w
	}
	return payload, errors.Join(errs...)
}

func (p *Poller) get(ctx context.Context, url string) ([]byte, error) {
	return getJSON(ctx, p.http, url)
}

func getJSON(ctx context.Context, c *resty.Client, url string) ([]byte, error) {
	resp, err := c.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, fmt.Errorf("GET %s: status %d", url, code)
	}
	return resp.Body(), nil
}
