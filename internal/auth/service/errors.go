package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Kind classifies an engine failure for the calling layer.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindConflict
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation_failed"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Reason refines a Kind. Unauthorized reasons are for logging and
// messaging; callers must not reveal why a credential check failed.
type Reason string

const (
	ReasonIncorrect    Reason = "incorrect"
	ReasonLockedOut    Reason = "locked_out"
	ReasonNotVerified  Reason = "not_verified"
	ReasonNotLoggedIn  Reason = "not_logged_in"
	ReasonLoginExpired Reason = "login_expired"
	ReasonEmailTaken   Reason = "email_taken"
	ReasonResetPending Reason = "reset_pending"
)

// Error is the typed failure returned for every expected failure mode.
type Error struct {
	Kind   Kind
	Reason Reason

	// Fields holds per-field messages for KindValidation.
	Fields map[string]string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(string(e.Reason))
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " %v", e.Fields)
	}
	return b.String()
}

// Is matches on Kind, and on Reason when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}

	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrIncorrect    = &Error{Kind: KindUnauthorized, Reason: ReasonIncorrect}
	ErrLockedOut    = &Error{Kind: KindUnauthorized, Reason: ReasonLockedOut}
	ErrNotVerified  = &Error{Kind: KindUnauthorized, Reason: ReasonNotVerified}
	ErrNotLoggedIn  = &Error{Kind: KindUnauthorized, Reason: ReasonNotLoggedIn}
	ErrLoginExpired = &Error{Kind: KindUnauthorized, Reason: ReasonLoginExpired}

	ErrConflict     = &Error{Kind: KindConflict}
	ErrEmailTaken   = &Error{Kind: KindConflict, Reason: ReasonEmailTaken}
	ErrResetPending = &Error{Kind: KindConflict, Reason: ReasonResetPending}
)

// ValidationError reports malformed input field by field.
func ValidationError(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Fields: fields}
}

// KindOf classifies err. Anything that is not an *Error is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the Reason carried by err, if any.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Oops codes for collaborator failures.
const (
	CodeStoreFailed              = "STORE_FAILED"
	CodeMailDeliveryFailed       = "MAIL_DELIVERY_FAILED"
	CodeTokenSignFailed          = "TOKEN_SIGN_FAILED"
	CodeHashFailed               = "HASH_FAILED"
	CodeConflictRetriesExhausted = "CONFLICT_RETRIES_EXHAUSTED"
)

func storeFailed(op string, err error) error {
	return oops.Code(CodeStoreFailed).With("operation", op).Wrap(err)
}

func hashFailed(op string, err error) error {
	return oops.Code(CodeHashFailed).With("operation", op).Wrap(err)
}
