package telegram

import (
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"catbot/internal/transport"
)

// classify translates a telebot error into the transport classification.
// This is the only place in the repository that looks at Telegram error
// descriptions; everything downstream switches on transport.ErrKind.
func classify(err error) *transport.SendError {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &transport.SendError{
			Kind:       transport.ErrThrottled,
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrNotStartedByUser):
		return &transport.SendError{Kind: transport.ErrBlocked, Err: err}

	case errors.Is(err, tele.ErrUserIsDeactivated),
		errors.Is(err, tele.ErrChatNotFound):
		return &transport.SendError{Kind: transport.ErrRecipientGone, Err: err}
	}

	var api *tele.Error
	if errors.As(err, &api) {
		d := strings.ToLower(api.Description)
		switch {
		case strings.HasPrefix(d, "bad request: can't parse entities"):
			return &transport.SendError{Kind: transport.ErrBadFormat, Err: err}
		case api.Code == 429:
			return &transport.SendError{Kind: transport.ErrThrottled, Err: err}
		case strings.Contains(d, "bot was blocked"):
			return &transport.SendError{Kind: transport.ErrBlocked, Err: err}
		case strings.Contains(d, "chat not found"), strings.Contains(d, "user is deactivated"):
			return &transport.SendError{Kind: transport.ErrRecipientGone, Err: err}
		}
	}

	// Network failures and anything unrecognized: retryable.
	return &transport.SendError{Kind: transport.ErrTransient, Err: err}
}
