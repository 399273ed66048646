package mailer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gardenalert/internal/alerts"
	"gardenalert/internal/apperror"
)

// Delivery is the pending result of one send.
type Delivery struct {
	Message Message
	done    chan struct{}
	err     error
}

// Done is closed once the send has finished.
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Err is the send result. Only meaningful after Done is closed.
func (d *Delivery) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Wait blocks until the send finishes or ctx is done.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type NotifierOptions struct {
	Timeout time.Duration
	Audit   *alerts.Log
	Logger  *zap.Logger
}

// Notifier sends each message on its own goroutine. Sends are never retried;
// every outcome is logged and audited.
type Notifier struct {
	relay   Relay
	timeout time.Duration
	audit   *alerts.Log
	log     *zap.Logger
	wg      sync.WaitGroup
	sent    atomic.Int64
	failed  atomic.Int64
}

func NewNotifier(relay Relay, opts NotifierOptions) *Notifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Notifier{relay: relay, timeout: opts.Timeout, audit: opts.Audit, log: opts.Logger}
}

// NewBatch returns an id grouping the messages of one fan-out.
func NewBatch() string { return uuid.NewString() }

// Send starts delivering msg and returns immediately.
func (n *Notifier) Send(msg Message) *Delivery {
	if msg.Batch == "" {
		msg.Batch = NewBatch()
	}
	d := &Delivery{Message: msg, done: make(chan struct{})}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer close(d.done)
		d.err = n.deliver(msg)
	}()
	return d
}

func (n *Notifier) deliver(msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperror.MailRelay("send", fmt.Errorf("panic: %v", r))
		}
		n.record(msg, err)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	return n.relay.Send(ctx, msg)
}

func (n *Notifier) record(msg Message, err error) {
	fields := []zap.Field{
		zap.String("to", msg.To),
		zap.String("kind", string(msg.Kind)),
		zap.String("batch", msg.Batch),
	}
	if err != nil {
		n.failed.Add(1)
		n.log.Error("email failed", append(fields, zap.Error(err))...)
	} else {
		n.sent.Add(1)
		n.log.Info("email sent", append(fields, zap.String("subject", msg.Subject))...)
	}
	if aerr := n.audit.Append(alerts.Delivery{
		Timestamp: time.Now(),
		Batch:     msg.Batch,
		Kind:      string(msg.Kind),
		Recipient: msg.To,
		Subject:   msg.Subject,
		Err:       err,
	}); aerr != nil {
		n.log.Warn("delivery audit append failed", zap.Error(aerr))
	}
}

// Stats returns counts of finished sends.
func (n *Notifier) Stats() (sent, failed int64) {
	return n.sent.Load(), n.failed.Load()
}

// Close waits for in-flight sends.
func (n *Notifier) Close() { n.wg.Wait() }
