package service

import "context"

// Mailer delivers the one-time links the engine issues. A failed send makes
// the engine roll back whatever the mail was announcing.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, address, slug string) error
	SendResetEmail(ctx context.Context, address, slug string) error
}
