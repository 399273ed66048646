package mailer_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"gardenalert/internal/alerts"
	"gardenalert/internal/apperror"
	"gardenalert/internal/mailer"
	"gardenalert/internal/mailer/mailertest"
)

func TestNotifierDeliveryResult(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	relay := &mailertest.Relay{}
	n := mailer.NewNotifier(relay, mailer.NotifierOptions{Logger: zap.New(core)})

	d := n.Send(mailer.Message{To: "a@x.com", Subject: "hi", Kind: mailer.KindStock})
	require.NoError(t, d.Wait(context.Background()))
	n.Close()

	require.Len(t, relay.Sent(), 1)
	assert.NotEmpty(t, relay.Sent()[0].Batch)
	assert.Equal(t, 1, logs.FilterMessage("email sent").Len())
	sent, failed := n.Stats()
	assert.Equal(t, int64(1), sent)
	assert.Equal(t, int64(0), failed)
}

func TestNotifierFailureDoesNotBlockOthers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	relay := &mailertest.Relay{Fail: func(m mailer.Message) error {
		if m.To == "bad@x.com" {
			return apperror.MailRelay("send", errors.New("550 no such user"))
		}
		return nil
	}}
	n := mailer.NewNotifier(relay, mailer.NotifierOptions{Logger: zap.New(core)})

	bad := n.Send(mailer.Message{To: "bad@x.com", Batch: "b1"})
	good := n.Send(mailer.Message{To: "good@x.com", Batch: "b1"})
	n.Close()

	<-bad.Done()
	assert.True(t, apperror.Is(bad.Err(), apperror.KindMailRelay))
	assert.NoError(t, good.Err())
	assert.Len(t, relay.SentTo("good@x.com"), 1)
	assert.Empty(t, relay.SentTo("bad@x.com"))

	failedLogs := logs.FilterMessage("email failed").All()
	require.Len(t, failedLogs, 1)
	assert.Equal(t, "bad@x.com", failedLogs[0].ContextMap()["to"])
	_, failed := n.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestNotifierAudits(t *testing.T) {
	audit, err := alerts.NewLog(t.TempDir())
	require.NoError(t, err)
	n := mailer.NewNotifier(&mailertest.Relay{}, mailer.NotifierOptions{Audit: audit})

	n.Send(mailer.Message{To: "a@x.com", Kind: mailer.KindWeather, Batch: "batch-1"})
	n.Close()

	b, err := os.ReadFile(audit.FileFor(time.Now()))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), "batch-1,weather,a@x.com"))
}

func TestVerifyRelay(t *testing.T) {
	assert.NoError(t, mailer.VerifyRelay(context.Background(), &mailertest.Relay{}, time.Second))
}
