// File: internal/logbus/logbus.go
package logbus

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zapcore"
)

// TimeFormat matches ISO-8601 with millisecond precision in UTC.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

type lineMsg struct {
	Type    string `json:"type"` // "log"
	Message string `json:"message"`
}

type historyMsg struct {
	Type  string   `json:"type"` // "history"
	Lines []string `json:"lines"`
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:       func(*http.Request) bool { return true },
	EnableCompression: true,
}

type client struct {
	c    *websocket.Conn
	out  chan any
	done chan struct{}
}

// Hub fans log lines out to connected viewers and keeps a bounded history
// that is replayed on connect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	history []string
	limit   int
}

func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = 200
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		history: make([]string, 0, limit),
		limit:   limit,
	}
}

// Format renders a line the way viewers display it.
func Format(ts time.Time, msg string) string {
	return "[" + ts.UTC().Format(TimeFormat) + "] " + msg
}

// Publish timestamps msg with the current time and broadcasts it.
func (h *Hub) Publish(msg string) { h.publishAt(time.Now(), msg) }

func (h *Hub) publishAt(ts time.Time, msg string) {
	line := Format(ts, msg)
	h.mu.Lock()
	h.history = append(h.history, line)
	if len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	h.mu.Unlock()
	h.broadcast(lineMsg{Type: "log", Message: line})
}

// History returns a copy of the retained lines, oldest first.
func (h *Hub) History() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.history))
	copy(out, h.history)
	return out
}

// Clients is the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(v any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.out <- v:
		default: // slow viewer, drop
		}
	}
}

// ServeWS upgrades the request and streams log lines until the viewer leaves.
// Viewers never send anything meaningful; inbound frames are discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	cl := &client{c: conn, out: make(chan any, 256), done: make(chan struct{})}

	// history and registration under one lock: no line is lost or repeated
	h.mu.Lock()
	lines := make([]string, len(h.history))
	copy(lines, h.history)
	cl.out <- historyMsg{Type: "history", Lines: lines}
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	// writer
	go func() {
		ping := time.NewTicker(45 * time.Second)
		defer ping.Stop()
		for {
			select {
			case v := <-cl.out:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(v); err != nil {
					return
				}
			case <-ping.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			case <-cl.done:
				return
			}
		}
	}()

	// reader
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(cl.done)
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
}

// Core returns a zapcore.Core that publishes entries at or above level.
func (h *Hub) Core(level zapcore.LevelEnabler) zapcore.Core {
	return &hubCore{LevelEnabler: level, hub: h}
}

type hubCore struct {
	zapcore.LevelEnabler
	hub    *Hub
	fields []zapcore.Field
}

func (c *hubCore) With(fields []zapcore.Field) zapcore.Core {
	next := &hubCore{LevelEnabler: c.LevelEnabler, hub: c.hub}
	next.fields = append(append(next.fields, c.fields...), fields...)
	return next
}

func (c *hubCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *hubCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	var b strings.Builder
	if ent.Level > zapcore.InfoLevel {
		b.WriteString(strings.ToUpper(ent.Level.String()))
		b.WriteString(" ")
	}
	if ent.LoggerName != "" {
		b.WriteString(ent.LoggerName)
		b.WriteString(": ")
	}
	b.WriteString(ent.Message)
	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, enc.Fields[k])
	}
	c.hub.publishAt(ent.Time, b.String())
	return nil
}

func (c *hubCore) Sync() error { return nil }
