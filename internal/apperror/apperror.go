// Package apperror defines the service error taxonomy and maps validator
// errors to user-facing messages.
package apperror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind classifies an error by how the service reacts to it.
type Kind string

const (
	// KindUpstreamFetch is transient; retried on the next tick or reconnect.
	KindUpstreamFetch Kind = "upstream_fetch"
	// KindMailRelay is logged per recipient and never retried.
	KindMailRelay Kind = "mail_relay"
	// KindValidation is surfaced to HTTP callers as a 4xx.
	KindValidation Kind = "validation"
	// KindNotFound is surfaced to HTTP callers as a 404.
	KindNotFound Kind = "not_found"
	// KindConfiguration is fatal at startup only.
	KindConfiguration Kind = "configuration"
)

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func UpstreamFetch(op string, err error) error { return New(KindUpstreamFetch, op, err) }
func MailRelay(op string, err error) error     { return New(KindMailRelay, op, err) }
func Configuration(op string, err error) error { return New(KindConfiguration, op, err) }

// Validation builds a validation error from a message.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Err: errors.New(msg)}
}

// NotFound builds a not-found error from a message.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Err: errors.New(msg)}
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Message returns the innermost message without kind prefixes.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return Message(e.Err)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

var (
	errRequired     = errors.New("is required")
	errInvalidEmail = errors.New("must be a valid email address")
	errNoItems      = errors.New("must contain at least one item")
	errBlankItem    = errors.New("must not contain blank items")
)

var customErrors = map[string]error{
	"EmailRequest.Email.required":        errRequired,
	"EmailRequest.Email.email":           errInvalidEmail,
	"SubscribeRequest.Email.required":    errRequired,
	"SubscribeRequest.Email.email":       errInvalidEmail,
	"SubscribeRequest.Items.required":    errNoItems,
	"SubscribeRequest.Items.min":         errNoItems,
	"SubscribeRequest.Items[0].required": errBlankItem,
}

// ValidationMessage converts validator errors into one readable sentence,
// e.g. "email must be a valid email address".
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Message(err)
	}
	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		ns := e.StructNamespace()
		key := ns + "." + e.Tag()
		msg := ""
		if v, ok := customErrors[key]; ok {
			msg = v.Error()
		} else if v, ok := customErrors[indexless(ns)+"[0]."+e.Tag()]; ok {
			msg = v.Error()
		} else {
			msg = "is invalid"
		}
		parts = append(parts, strings.ToLower(fieldName(e))+" "+msg)
	}
	return strings.Join(parts, "; ")
}

func fieldName(e validator.FieldError) string {
	f := e.Field()
	if i := strings.IndexByte(f, '['); i >= 0 {
		f = f[:i]
	}
	return f
}

// indexless strips a trailing [n] from a namespace such as Req.Items[3].
func indexless(ns string) string {
	if i := strings.LastIndexByte(ns, '['); i >= 0 && strings.HasSuffix(ns, "]") {
		return ns[:i]
	}
	return ns
}
