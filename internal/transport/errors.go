package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrKind is the closed set of send-failure classes the delivery engine
// switches on. The translation from raw transport errors happens once, at
// the adapter boundary; nothing outside an adapter inspects error strings.
type ErrKind int

const (
	// ErrTransient covers network blips and anything else worth retrying
	// on a later run without touching recipient state.
	ErrTransient ErrKind = iota

	// ErrBlocked means the recipient actively blocked the bot.
	ErrBlocked

	// ErrRecipientGone means the chat or account no longer exists
	// (deleted account, chat not found, deactivated user).
	ErrRecipientGone

	// ErrBadFormat means the transport rejected the message formatting
	// (parse entities). A plain-text retry is worthwhile.
	ErrBadFormat

	// ErrThrottled means the transport asked us to back off. Retryable,
	// possibly with a hint in RetryAfter.
	ErrThrottled
)

func (k ErrKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrBlocked:
		return "blocked"
	case ErrRecipientGone:
		return "recipient_gone"
	case ErrBadFormat:
		return "bad_format"
	case ErrThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// SendError wraps a raw transport error with its classification.
type SendError struct {
	Kind       ErrKind
	RetryAfter time.Duration // only set for ErrThrottled, 0 if unknown
	Err        error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// AsSendError reports whether err carries a classification. Errors without
// one did not come from a transport adapter and are treated as unexpected
// by the delivery engine.
func AsSendError(err error) (*SendError, bool) {
	var se *SendError
	ok := errors.As(err, &se)
	return se, ok
}
