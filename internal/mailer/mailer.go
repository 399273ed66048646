// Package mailer hands composed messages to a mail relay.
package mailer

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind tags a message for logs and the delivery audit.
type Kind string

const (
	KindStock        Kind = "stock"
	KindWeather      Kind = "weather"
	KindVerification Kind = "verification"
	KindTest         Kind = "test"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Kind    Kind
	// Batch groups the messages of one fan-out.
	Batch string
}

// Relay is an external mail service.
type Relay interface {
	Send(ctx context.Context, msg Message) error
	// Verify checks that the relay is reachable and accepts our credentials.
	Verify(ctx context.Context) error
}

// LogRelay only logs messages. It backs mail.mock.
type LogRelay struct {
	log *zap.Logger
}

func NewLogRelay(log *zap.Logger) *LogRelay {
	return &LogRelay{log: log}
}

func (r *LogRelay) Send(_ context.Context, msg Message) error {
	r.log.Info("mock email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("kind", string(msg.Kind)),
		zap.Int("body_bytes", len(msg.HTML)))
	return nil
}

func (r *LogRelay) Verify(context.Context) error { return nil }

// VerifyRelay runs relay.Verify under a timeout.
func VerifyRelay(ctx context.Context, relay Relay, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return relay.Verify(ctx)
}
