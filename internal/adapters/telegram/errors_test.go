package telegram

import (
	"errors"
	"fmt"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"catbot/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want transport.ErrKind
	}{
		{"blocked by user", tele.ErrBlockedByUser, transport.ErrBlocked},
		{"not started", tele.ErrNotStartedByUser, transport.ErrBlocked},
		{"deactivated", tele.ErrUserIsDeactivated, transport.ErrRecipientGone},
		{"chat not found", tele.ErrChatNotFound, transport.ErrRecipientGone},
		{
			"wrapped sentinel",
			fmt.Errorf("send to 42: %w", tele.ErrBlockedByUser),
			transport.ErrBlocked,
		},
		{
			"parse entities",
			&tele.Error{Code: 400, Description: "Bad Request: can't parse entities: unmatched '*'"},
			transport.ErrBadFormat,
		},
		{
			"429 by code",
			&tele.Error{Code: 429, Description: "Too Many Requests: retry after 30"},
			transport.ErrThrottled,
		},
		{
			"blocked by description",
			&tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"},
			transport.ErrBlocked,
		},
		{
			"gone by description",
			&tele.Error{Code: 400, Description: "Bad Request: chat not found"},
			transport.ErrRecipientGone,
		},
		{"plain network error", errors.New("dial tcp: i/o timeout"), transport.ErrTransient},
		{
			"unknown api error",
			&tele.Error{Code: 400, Description: "Bad Request: message is too long"},
			transport.ErrTransient,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			se := classify(tc.err)
			if se == nil {
				t.Fatal("classify returned nil")
			}
			if se.Kind != tc.want {
				t.Fatalf("kind = %s, want %s", se.Kind, tc.want)
			}
			if !errors.Is(se, tc.err) && se.Err != tc.err {
				t.Fatal("classified error must wrap the original")
			}
		})
	}
}

func TestClassifyFloodRetryAfter(t *testing.T) {
	t.Parallel()

	flood := tele.FloodError{
		Error:      &tele.Error{Code: 429, Description: "Too Many Requests: retry after 17"},
		RetryAfter: 17,
	}
	se := classify(flood)
	if se.Kind != transport.ErrThrottled {
		t.Fatalf("kind = %s, want throttled", se.Kind)
	}
	if se.RetryAfter != 17*time.Second {
		t.Fatalf("retry_after = %v, want 17s", se.RetryAfter)
	}
}
