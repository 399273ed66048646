// Package mailertest provides a mailer.Relay that records messages in memory.
package mailertest

import (
	"context"
	"strings"
	"sync"

	"gardenalert/internal/mailer"
)

// Relay records messages instead of sending them.
type Relay struct {
	mu   sync.Mutex
	sent []mailer.Message
	// Fail, when set, decides per message whether Send errors.
	Fail func(mailer.Message) error
}

var _ mailer.Relay = (*Relay)(nil)

func (r *Relay) Send(_ context.Context, msg mailer.Message) error {
	if r.Fail != nil {
		if err := r.Fail(msg); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

func (r *Relay) Verify(context.Context) error { return nil }

// Sent returns a copy of the recorded messages.
func (r *Relay) Sent() []mailer.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]mailer.Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// SentTo filters recorded messages by recipient.
func (r *Relay) SentTo(email string) []mailer.Message {
	var out []mailer.Message
	for _, m := range r.Sent() {
		if strings.EqualFold(m.To, email) {
			out = append(out, m)
		}
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *Relay) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
