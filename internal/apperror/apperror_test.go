package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type EmailRequest struct {
	Email string `validate:"required,email"`
}

type SubscribeRequest struct {
	Email string   `validate:"required,email"`
	Items []string `validate:"required,min=1,dive,required"`
}

func TestKinds(t *testing.T) {
	base := errors.New("dial tcp: timeout")
	err := fmt.Errorf("poll tick: %w", UpstreamFetch("stock", base))

	assert.True(t, Is(err, KindUpstreamFetch))
	assert.False(t, Is(err, KindMailRelay))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "dial tcp: timeout", Message(err))
	assert.Nil(t, New(KindMailRelay, "send", nil))
	assert.Equal(t, "validation: bad", Validation("bad").Error())
	assert.True(t, Is(NotFound("gone"), KindNotFound))
	assert.False(t, Is(nil, KindValidation))
}

func TestValidationMessage(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"missing email", EmailRequest{}, "email is required"},
		{"bad email", EmailRequest{Email: "nope"}, "email must be a valid email address"},
		{"no items", SubscribeRequest{Email: "a@x.com"}, "items must contain at least one item"},
		{"empty items", SubscribeRequest{Email: "a@x.com", Items: []string{}}, "items must contain at least one item"},
		{"blank item", SubscribeRequest{Email: "a@x.com", Items: []string{"seed1", ""}}, "items must not contain blank items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			assert.Error(t, err)
			assert.Equal(t, tt.want, ValidationMessage(err))
		})
	}
}

func TestValidationMessagePlainError(t *testing.T) {
	assert.Equal(t, "boom", ValidationMessage(errors.New("boom")))
}
