package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"gardenalert/internal/apperror"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string // mandatory | opportunistic | none
	Timeout  time.Duration
}

// SMTPRelay sends through an authenticated SMTP server. A client is built
// per send so concurrent sends never share a connection.
type SMTPRelay struct {
	cfg SMTPConfig
}

func NewSMTPRelay(cfg SMTPConfig) *SMTPRelay {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &SMTPRelay{cfg: cfg}
}

func (r *SMTPRelay) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(r.cfg.Port),
		mail.WithTimeout(r.cfg.Timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(r.cfg.Username),
		mail.WithPassword(r.cfg.Password),
	}
	switch {
	case r.cfg.Port == 465:
		opts = append(opts, mail.WithSSL())
	case r.cfg.TLS == "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case r.cfg.TLS == "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	c, err := mail.NewClient(r.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}

func (r *SMTPRelay) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(r.cfg.From); err != nil {
		return apperror.MailRelay("from", err)
	}
	if err := m.To(msg.To); err != nil {
		return apperror.MailRelay("to", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	c, err := r.client()
	if err != nil {
		return apperror.MailRelay("send", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return apperror.MailRelay("send", err)
	}
	return nil
}

// Verify dials and authenticates without sending.
func (r *SMTPRelay) Verify(ctx context.Context) error {
	c, err := r.client()
	if err != nil {
		return apperror.MailRelay("verify", err)
	}
	if err := c.DialWithContext(ctx); err != nil {
		return apperror.MailRelay("verify", err)
	}
	return c.Close()
}
