// Package monitor ties ingestion to notification: it receives upstream
// payloads, runs change detection, and fans out emails to subscribers.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gardenalert/internal/compose"
	"gardenalert/internal/detect"
	"gardenalert/internal/game"
	"gardenalert/internal/mailer"
	"gardenalert/internal/store"
	"gardenalert/internal/upstream"
)

// CatalogRefresher reloads item metadata into a catalog.
type CatalogRefresher interface {
	Refresh(ctx context.Context, c *game.Catalog) error
}

// Sender hands a message to the mail relay asynchronously.
type Sender interface {
	Send(msg mailer.Message) *mailer.Delivery
}

type Options struct {
	Store    *store.Store
	Composer *compose.Composer
	Sender   Sender
	Catalog  *game.Catalog
	Fetcher  CatalogRefresher
	Logger   *zap.Logger
	Now      func() time.Time
}

// Monitor owns the last-seen state of both feeds.
type Monitor struct {
	store    *store.Store
	composer *compose.Composer
	sender   Sender
	catalog  *game.Catalog
	fetcher  CatalogRefresher
	log      *zap.Logger
	now      func() time.Time

	detector *detect.Detector
	weather  *detect.WeatherTracker

	mu        sync.RWMutex
	stock     game.StockSnapshot
	stockAt   time.Time
	weatherAt time.Time

	refreshing sync.Mutex
	background atomic.Bool
}

func New(opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Catalog == nil {
		opts.Catalog = game.NewCatalog("")
	}
	if opts.Composer == nil {
		opts.Composer = compose.New("", opts.Catalog)
	}
	return &Monitor{
		store:    opts.Store,
		composer: opts.Composer,
		sender:   opts.Sender,
		catalog:  opts.Catalog,
		fetcher:  opts.Fetcher,
		log:      opts.Logger,
		now:      opts.Now,
		detector: detect.New(),
		weather:  detect.NewWeatherTracker(),
	}
}

// Run bootstraps the catalog in the background and feeds src into the
// monitor until ctx is done.
func (m *Monitor) Run(ctx context.Context, src upstream.Source) error {
	m.RefreshCatalogAsync(ctx)
	m.log.Info("monitor started")
	err := src.Run(ctx, m.Handle)
	m.log.Info("monitor stopped")
	return err
}

// RefreshCatalog reloads item metadata. Refreshes run one at a time.
func (m *Monitor) RefreshCatalog(ctx context.Context) error {
	if m.fetcher == nil {
		return nil
	}
	m.refreshing.Lock()
	defer m.refreshing.Unlock()
	return m.fetcher.Refresh(ctx, m.catalog)
}

// RefreshCatalogAsync starts a background refresh unless one is already
// running. It reports whether a refresh was started.
func (m *Monitor) RefreshCatalogAsync(ctx context.Context) bool {
	if m.fetcher == nil || !m.background.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer m.background.Store(false)
		_ = m.RefreshCatalog(ctx)
	}()
	return true
}

// Catalog is the live item catalog.
func (m *Monitor) Catalog() *game.Catalog { return m.catalog }

// Handle is the upstream sink.
func (m *Monitor) Handle(p game.Payload) { m.Observe(p) }

// Observe processes one payload and returns the deliveries it started.
func (m *Monitor) Observe(p game.Payload) []*mailer.Delivery {
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = m.now()
	}
	var out []*mailer.Delivery
	if p.Stock != nil {
		out = append(out, m.observeStock(p.Stock, p.ReceivedAt)...)
	}
	if p.Weather != nil {
		out = append(out, m.observeWeather(p.Weather, p.ReceivedAt)...)
	}
	return out
}

func (m *Monitor) observeStock(snap game.StockSnapshot, at time.Time) []*mailer.Delivery {
	if !m.detector.Observe(detect.FeedStock, game.Encode(snap)) {
		m.log.Debug("stock unchanged")
		return nil
	}
	m.mu.Lock()
	m.stock = snap
	m.stockAt = at
	m.mu.Unlock()
	m.log.Info("stock changed", zap.Int("items", snap.Len()))

	batch := mailer.NewBatch()
	var out []*mailer.Delivery
	for _, sub := range m.store.Subscribers() {
		msg, ok, err := m.composer.Stock(sub.Email, sub.Items, snap)
		if err != nil {
			m.log.Error("compose stock email failed", zap.String("to", sub.Email), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if !m.store.IsSubscribed(sub.Email) {
			continue
		}
		msg.Batch = batch
		out = append(out, m.sender.Send(msg))
	}
	if len(out) > 0 {
		m.log.Info("stock alerts queued", zap.Int("emails", len(out)), zap.String("batch", batch))
	}
	return out
}

func (m *Monitor) observeWeather(snap game.WeatherSnapshot, at time.Time) []*mailer.Delivery {
	m.mu.Lock()
	m.weatherAt = at
	m.mu.Unlock()
	if !m.detector.Observe(detect.FeedWeather, game.Encode(snap)) {
		return nil
	}
	tr, ev := m.weather.Observe(snap)
	switch tr {
	case detect.None:
		return nil
	case detect.Ended:
		m.log.Info("weather ended", zap.String("weather", ev.WeatherID))
		return nil
	}
	m.log.Info(fmt.Sprintf("weather %s", tr), zap.String("weather", ev.WeatherID), zap.Int("minutes", ev.Minutes()))

	batch := mailer.NewBatch()
	var out []*mailer.Delivery
	for _, sub := range m.store.Subscribers() {
		msg, err := m.composer.Weather(sub.Email, ev)
		if err != nil {
			m.log.Error("compose weather email failed", zap.String("to", sub.Email), zap.Error(err))
			continue
		}
		if !m.store.IsSubscribed(sub.Email) {
			continue
		}
		msg.Batch = batch
		out = append(out, m.sender.Send(msg))
	}
	return out
}

// Stock returns the latest stock snapshot and when it was received.
func (m *Monitor) Stock() (game.StockSnapshot, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stock, m.stockAt
}

// LastStockAt is when stock last changed.
func (m *Monitor) LastStockAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stockAt
}

// LastWeatherAt is when a weather feed was last received.
func (m *Monitor) LastWeatherAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weatherAt
}

// ActiveWeather is the id of the current weather event, or "".
func (m *Monitor) ActiveWeather() string { return m.weather.ActiveID() }
