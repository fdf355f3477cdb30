// Package handlers is the thin chat-command surface over the delivery
// engine: recipient contact tracking on every bot instance, plus the admin
// commands on the primary instance.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"catbot/internal/notify"
	"catbot/internal/storage"
	"catbot/internal/transport"
	"catbot/pkg/logx"
)

type Handler struct {
	store    *storage.Store
	notifier *notify.Service
	sender   transport.Sender
	log      logx.Logger

	// channel is this bot instance's username; recipients who talk to it
	// get it recorded as their delivery channel.
	channel string
	// primary enables the admin command surface (first configured bot).
	primary bool

	admins map[int64]struct{}
}

func New(store *storage.Store, notifier *notify.Service, sender transport.Sender, adminIDs []int64, primary bool, log logx.Logger) *Handler {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Handler{
		store:    store,
		notifier: notifier,
		sender:   sender,
		log:      log,
		channel:  sender.Username(),
		primary:  primary,
		admins:   admins,
	}
}

// Run consumes updates from one adapter until ctx is done.
func (h *Handler) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			h.handle(ctx, up)
		}
	}
}

func (h *Handler) handle(ctx context.Context, up transport.Update) {
	if up.FromID == 0 {
		return
	}
	// Every interaction keeps the recipient row and its delivery channel
	// current; first contact creates it.
	if err := h.store.UpsertRecipient(ctx, up.FromID, up.Username, h.channel, time.Now()); err != nil {
		h.log.Error("recipient upsert failed", logx.Int64("recipient", up.FromID), logx.Err(err))
	}

	text := strings.TrimSpace(up.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	cmd, args := splitCommand(text)

	switch cmd {
	case "/start":
		if err := h.store.SetNotificationsEnabled(ctx, up.FromID, true); err != nil {
			h.log.Error("enabling notifications failed", logx.Int64("recipient", up.FromID), logx.Err(err))
		}
		h.reply(ctx, up.ChatID, "Welcome! You will be notified about new catalog items. Send /stop to opt out.")
	case "/stop":
		if err := h.store.SetNotificationsEnabled(ctx, up.FromID, false); err != nil {
			h.log.Error("disabling notifications failed", logx.Int64("recipient", up.FromID), logx.Err(err))
			return
		}
		h.reply(ctx, up.ChatID, "Notifications disabled. Send /start to opt back in.")
	case "/language":
		lang := strings.ToLower(strings.TrimSpace(args))
		if lang == "" || len(lang) > 8 {
			h.reply(ctx, up.ChatID, "Usage: /language <code>  (e.g. /language de)")
			return
		}
		if err := h.store.SetLanguage(ctx, up.FromID, lang); err != nil {
			h.log.Error("setting language failed", logx.Int64("recipient", up.FromID), logx.Err(err))
			return
		}
		h.reply(ctx, up.ChatID, "Language set to "+lang+". Notifications will be translated when possible.")
	default:
		if h.primary && h.isAdmin(up.FromID) {
			h.handleAdmin(ctx, up.ChatID, cmd, args)
		}
	}
}

func (h *Handler) handleAdmin(ctx context.Context, chatID int64, cmd, args string) {
	switch cmd {
	case "/send":
		h.cmdSend(ctx, chatID, args)
	case "/broadcast":
		h.cmdBroadcast(ctx, chatID, args)
	case "/categorize":
		h.cmdCategorize(ctx, chatID, args)
	}
}

func (h *Handler) cmdSend(ctx context.Context, chatID int64, args string) {
	id, rest, ok := leadingID(args)
	if !ok || rest == "" {
		h.reply(ctx, chatID, "Usage: /send <recipient_id> <text>")
		return
	}
	stats, err := h.notifier.EnqueueCustomMessage(ctx, id, rest)
	if errors.Is(err, notify.ErrRecipientBlocked) {
		h.reply(ctx, chatID, "Recipient is blocked; message not queued.")
		return
	}
	if err != nil {
		h.log.Error("send command failed", logx.Int64("recipient", id), logx.Err(err))
		h.reply(ctx, chatID, "Sending failed: "+err.Error())
		return
	}
	h.reply(ctx, chatID, statsSummary(1, stats))
}

func (h *Handler) cmdBroadcast(ctx context.Context, chatID int64, args string) {
	if args == "" {
		h.reply(ctx, chatID, "Usage: /broadcast <text>")
		return
	}
	queued, stats, err := h.notifier.BroadcastCustomMessage(ctx, args, true)
	if err != nil {
		h.log.Error("broadcast command failed", logx.Err(err))
		h.reply(ctx, chatID, "Broadcast failed: "+err.Error())
		return
	}
	h.reply(ctx, chatID, statsSummary(queued, stats))
}

func (h *Handler) cmdCategorize(ctx context.Context, chatID int64, args string) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		h.reply(ctx, chatID, "Usage: /categorize <product_id> <category> [subcategory]")
		return
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		h.reply(ctx, chatID, "Invalid product id: "+fields[0])
		return
	}
	sub := ""
	if len(fields) > 2 {
		sub = fields[2]
	}
	if err := h.store.SetProductCategory(ctx, id, fields[1], sub); err != nil {
		h.reply(ctx, chatID, "Categorize failed: "+err.Error())
		return
	}
	queued, err := h.notifier.EnqueueProductNotification(ctx, id)
	if err != nil {
		h.log.Error("fan-out failed", logx.Int64("product", id), logx.Err(err))
		h.reply(ctx, chatID, "Categorized, but fan-out failed: "+err.Error())
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("Product %d categorized; %d notifications queued.", id, queued))
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	err := h.sender.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, nil)
	if err != nil {
		h.log.Warn("reply failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (h *Handler) isAdmin(id int64) bool {
	_, ok := h.admins[id]
	return ok
}

func statsSummary(queued int, s notify.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Queued %d message(s).\n", queued)
	fmt.Fprintf(&b, "Sent: %d", s.Sent)
	if s.FormatRetried > 0 {
		fmt.Fprintf(&b, " (%d as plain text)", s.FormatRetried)
	}
	if s.Retired > 0 {
		fmt.Fprintf(&b, "\nRetired (nothing to deliver): %d", s.Retired)
	}
	if s.RateLimited > 0 {
		fmt.Fprintf(&b, "\nRate limited (retried later): %d", s.RateLimited)
	}
	if s.Blocked > 0 {
		fmt.Fprintf(&b, "\nBlocked: %d", s.Blocked)
	}
	if s.NotFound > 0 {
		fmt.Fprintf(&b, "\nGone: %d", s.NotFound)
	}
	if s.Transient > 0 {
		fmt.Fprintf(&b, "\nPending retry: %d", s.Transient)
	}
	if s.Unexpected > 0 {
		fmt.Fprintf(&b, "\nErrors (left pending): %d", s.Unexpected)
	}
	return b.String()
}

func splitCommand(text string) (cmd, args string) {
	cmd = text
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		cmd, args = text[:i], strings.TrimSpace(text[i+1:])
	}
	// strip the @botname suffix Telegram appends in groups
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), args
}

func leadingID(args string) (int64, string, bool) {
	fields := strings.SplitN(args, " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	rest := ""
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}
	return id, rest, true
}
