package mail

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/passage/pkg/slogx"
)

// WriterMailer writes each rendered message to W instead of sending it.
// It is meant for development, where W is usually stdout.
type WriterMailer struct {
	Config Config
	W      io.Writer

	mu sync.Mutex
}

func (m *WriterMailer) SendVerificationEmail(ctx context.Context, address, slug string) error {
	msg, err := VerificationMessage(m.Config, address, slug)
	if err != nil {
		return err
	}
	return m.write(ctx, msg)
}

func (m *WriterMailer) SendResetEmail(ctx context.Context, address, slug string) error {
	msg, err := ResetMessage(m.Config, address, slug)
	if err != nil {
		return err
	}
	return m.write(ctx, msg)
}

func (m *WriterMailer) write(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.W.Write(append(msg.Bytes(time.Now()), '\n')); err != nil {
		return err
	}
	slogx.FromContext(ctx).Debug("mail written", slog.String("subject", msg.Subject))
	return nil
}
