package logbus

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestFormat(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 30, 0, 5_000_000, time.FixedZone("X", 3600))
	assert.Equal(t, "[2025-06-01T11:30:00.005Z] hello", Format(ts, "hello"))
}

func TestHistoryIsBounded(t *testing.T) {
	h := NewHub(2)
	h.Publish("one")
	h.Publish("two")
	h.Publish("three")

	hist := h.History()
	require.Len(t, hist, 2)
	assert.True(t, strings.HasSuffix(hist[0], "] two"))
	assert.True(t, strings.HasSuffix(hist[1], "] three"))
}

func TestCoreFormatsFields(t *testing.T) {
	h := NewHub(10)
	log := zap.New(h.Core(zapcore.InfoLevel)).Named("monitor").With(zap.String("feed", "stock"))

	log.Info("changed", zap.Int("items", 3))
	log.Warn("send failed", zap.Error(errors.New("relay down")))
	log.Debug("hidden")

	hist := h.History()
	require.Len(t, hist, 2)
	assert.Contains(t, hist[0], "] monitor: changed feed=stock items=3")
	assert.Contains(t, hist[1], "] WARN monitor: send failed error=relay down feed=stock")
}

func TestServeWSReplaysHistoryThenStreams(t *testing.T) {
	h := NewHub(10)
	h.Publish("before")

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hist historyMsg
	require.NoError(t, conn.ReadJSON(&hist))
	assert.Equal(t, "history", hist.Type)
	require.Len(t, hist.Lines, 1)
	assert.Contains(t, hist.Lines[0], "before")

	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.Publish("after")

	var line lineMsg
	require.NoError(t, conn.ReadJSON(&line))
	assert.Equal(t, "log", line.Type)
	assert.Contains(t, line.Message, "] after")

	conn.Close()
	require.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
