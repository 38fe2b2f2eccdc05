// Package mail delivers the account verification email. SMTPMailer talks to
// a real SMTP relay through go-mail; LogMailer only logs, and is used when no
// relay is configured.
package mail

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/rs/zerolog/log"
	gomail "github.com/wneessen/go-mail"

	"github.com/tbourn/go-messenger-backend/internal/config"
)

// Mailer sends the verification code to a freshly registered account.
type Mailer interface {
	SendVerification(ctx context.Context, name, email, code string) error
}

// VerificationSubject is the subject line of the verification email.
const VerificationSubject = "Verifica tu cuenta"

// New picks the sender from cfg: SMTP when a host is set, logging otherwise.
func New(cfg config.MailConfig) (Mailer, error) {
	if cfg.Host == "" {
		return LogMailer{}, nil
	}
	return NewSMTPMailer(cfg)
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	client  *gomail.Client
	from    string
	timeout time.Duration
}

// NewSMTPMailer builds the go-mail client. Authentication is only negotiated
// when a username is configured; STARTTLS is used when the relay offers it.
func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: c, from: cfg.From, timeout: cfg.Timeout}, nil
}

// SendVerification builds a plain-text message with an HTML alternative and
// delivers it, bounded by the configured timeout.
func (s *SMTPMailer) SendVerification(ctx context.Context, name, email, code string) error {
	m, err := VerificationMessage(s.from, name, email, code)
	if err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send verification to %s: %w", email, err)
	}
	return nil
}

// VerificationMessage renders the verification email.
func VerificationMessage(from, name, email, code string) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(email); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	m.Subject(VerificationSubject)
	m.SetBodyString(gomail.TypeTextPlain,
		fmt.Sprintf("Hola %s, tu código de verificación es: %s", name, code))
	m.AddAlternativeString(gomail.TypeTextHTML,
		fmt.Sprintf("<p>Hola <b>%s</b>,</p><p>Tu código de verificación es: <b>%s</b></p>",
			html.EscapeString(name), code))
	return m, nil
}

// LogMailer writes the verification code to the log instead of sending it.
// Meant for development setups without an SMTP relay.
type LogMailer struct{}

// SendVerification implements Mailer.
func (LogMailer) SendVerification(_ context.Context, name, email, code string) error {
	log.Info().
		Str("to", email).
		Str("name", name).
		Str("code", code).
		Msg("verification mail (smtp disabled)")
	return nil
}
