package mailertest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"gardenalert/internal/mailer"
)

func TestRelayRecordsAndResets(t *testing.T) {
	r := &Relay{}
	_ = r.Send(context.Background(), mailer.Message{To: "A@x.com"})
	assert.Len(t, r.SentTo("a@x.com"), 1)
	assert.Empty(t, r.SentTo("b@x.com"))
	r.Reset()
	assert.Empty(t, r.Sent())
}

func TestRelayFail(t *testing.T) {
	r := &Relay{Fail: func(mailer.Message) error { return errors.New("rejected") }}
	assert.Error(t, r.Send(context.Background(), mailer.Message{To: "a@x.com"}))
	assert.Empty(t, r.Sent())
}
