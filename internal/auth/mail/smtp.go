package mail

import (
	"context"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/samber/oops"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends through a plain SMTP relay, upgrading with STARTTLS
// when the server offers it.
type SMTPMailer struct {
	cfg  Config
	send sendFunc
	now  func() time.Time
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, address, slug string) error {
	msg, err := VerificationMessage(m.cfg, address, slug)
	if err != nil {
		return err
	}
	return m.deliver(ctx, msg)
}

func (m *SMTPMailer) SendResetEmail(ctx context.Context, address, slug string) error {
	msg, err := ResetMessage(m.cfg, address, slug)
	if err != nil {
		return err
	}
	return m.deliver(ctx, msg)
}

func (m *SMTPMailer) deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, m.cfg.From, []string{msg.To}, msg.Bytes(m.now())); err != nil {
		return oops.With("smtp_addr", addr).With("subject", msg.Subject).Wrap(err)
	}
	return nil
}
