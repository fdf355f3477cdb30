package transport

import "context"

// ChatTarget addresses a single Telegram chat.
type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string // "" means plain text
	DisablePreview bool
	ReplyMarkup    any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

const (
	ParseModeMarkdown = "Markdown"
	ParseModePlain    = ""
)

// Sender is the narrow outbound contract the delivery engine needs from a
// bot connection. Errors returned from SendText are classified: any failure
// originating in the transport comes back as a *SendError.
type Sender interface {
	// Username returns the bot's own handle, without the leading "@".
	// It identifies the delivery channel in the registry.
	Username() string

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

// Update is the inbound side: the minimal event shape the app consumes
// from an adapter (recipient contact tracking, admin commands).
type Update struct {
	ChatID   int64
	FromID   int64
	Username string
	Text     string
}

// Adapter is a live bot connection with a lifecycle.
type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}
