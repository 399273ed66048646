package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, New("production", "info"))
	assert.NotNil(t, New("development", "not-a-level"))
}

func TestNewTeesExtraCores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := New("development", "debug", core)

	log.Info("hello")
	log.Debug("quiet")

	assert.Equal(t, 1, logs.FilterMessage("hello").Len())
	assert.Equal(t, 0, logs.FilterMessage("quiet").Len())
}
