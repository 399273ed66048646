// File: internal/upstream/stream.go
package upstream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gardenalert/internal/apperror"
	"gardenalert/internal/game"
)

type StreamerConfig struct {
	URL     string
	Key     string
	Backoff time.Duration
}

// Streamer holds a websocket to the upstream push endpoint and reconnects
// after a fixed backoff whenever it drops.
type Streamer struct {
	cfg StreamerConfig
	log *zap.Logger
}

func NewStreamer(cfg StreamerConfig, log *zap.Logger) *Streamer {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	return &Streamer{cfg: cfg, log: log}
}

func (s *Streamer) Run(ctx context.Context, sink Sink) error {
	for {
		if err := s.runOnce(ctx, sink); err != nil && ctx.Err() == nil {
			s.log.Warn("stream disconnected", zap.Error(err), zap.Duration("reconnect_in", s.cfg.Backoff))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.Backoff):
		}
	}
}

func (s *Streamer) endpoint() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse stream url: %w", err)
	}
	if s.cfg.Key != "" {
		q := u.Query()
		q.Set(keyHeader, s.cfg.Key)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Streamer) runOnce(ctx context.Context, sink Sink) error {
	endpoint, err := s.endpoint()
	if err != nil {
		return apperror.UpstreamFetch("stream", err)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return apperror.UpstreamFetch("stream dial", err)
	}
	defer conn.Close()
	s.log.Info("stream connected", zap.String("url", s.cfg.URL))

	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	errCh := make(chan error, 1)
	go func() {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
			if mt != websocket.TextMessage {
				continue
			}
			p, err := game.DecodePayload(data)
			if err != nil {
				s.log.Warn("stream message ignored", zap.Error(err))
				continue
			}
			if p.Empty() {
				continue
			}
			p.ReceivedAt = time.Now()
			deliver(s.log, sink, p)
		}
	}()

	ping := time.NewTicker(45 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return ctx.Err()
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return apperror.UpstreamFetch("stream ping", err)
			}
		case err := <-errCh:
			return apperror.UpstreamFetch("stream read", err)
		}
	}
}
