package notify

import (
	"context"
	"fmt"
	"strings"

	"catbot/internal/storage"
	"catbot/internal/transport"
	"catbot/pkg/logx"
)

const captionPreviewRunes = 100

// sendOne executes a single job end to end: resolve the recipient and
// content, route through the recipient's delivery channel, attempt the send
// (with a plain-text retry when rich formatting is rejected), and apply the
// outcome to job and recipient state. It never returns an error: one bad
// recipient must not abort the batch.
func (s *Service) sendOne(ctx context.Context, job storage.Job) Outcome {
	log := s.log.With(logx.Int64("job", job.ID), logx.Int64("recipient", job.RecipientID), logx.String("kind", string(job.Kind)))

	rec, err := s.dir.Recipient(ctx, job.RecipientID)
	if err != nil {
		log.Error("recipient lookup failed", logx.Err(err))
		return OutcomeUnexpected
	}
	if rec == nil {
		// Recipient deleted after enqueue; nothing left to deliver to.
		s.markSent(ctx, log, job.ID)
		return OutcomeContentGone
	}

	// Disabled or blocked recipients never receive a delivery. The job is
	// retired as a soft-permanent no-op so it stops consuming queue capacity.
	if rec.Blocked || (job.Kind == storage.KindProduct && !rec.NotificationsEnabled) {
		s.markSent(ctx, log, job.ID)
		return OutcomeContentGone
	}

	text, opt, ok, err := s.render(ctx, job, rec)
	if err != nil {
		log.Error("content render failed", logx.Err(err))
		return OutcomeUnexpected
	}
	if !ok {
		// Product deleted before delivery: terminal no-op, not a failure.
		s.markSent(ctx, log, job.ID)
		return OutcomeContentGone
	}

	ch := s.router.ResolveOrDefault(rec.DeliveryChannel)
	if ch == nil {
		// Zero registered channels: skip, don't crash. The job stays
		// queued for when a connection comes back.
		log.Warn("no delivery channel registered, skipping send")
		return OutcomeSkipped
	}

	target := transport.ChatTarget{ChatID: rec.ID}
	err = ch.SendText(ctx, target, text, opt)
	if err == nil {
		s.markSent(ctx, log, job.ID)
		return OutcomeSent
	}

	se, classified := transport.AsSendError(err)
	if !classified {
		log.Error("unclassified send failure, leaving job pending", logx.Err(err))
		return OutcomeUnexpected
	}

	if se.Kind == transport.ErrBadFormat {
		// One degraded retry with plain text; both attempts count as a
		// single job execution.
		plainErr := ch.SendText(ctx, target, text, &transport.SendOptions{})
		if plainErr == nil {
			s.markSent(ctx, log, job.ID)
			return OutcomeFormatRetried
		}
		log.Warn("plain-text retry failed", logx.Err(plainErr))
		if se2, ok := transport.AsSendError(plainErr); ok {
			se = se2
		} else {
			return OutcomeUnexpected
		}
	}

	return s.classify(ctx, log, job, se)
}

// classify maps a send failure to a recipient-state transition and a job
// disposition, per the delivery failure table.
func (s *Service) classify(ctx context.Context, log logx.Logger, job storage.Job, se *transport.SendError) Outcome {
	switch se.Kind {
	case transport.ErrBlocked:
		// Product notifications: stop notifying. Custom messages: the
		// recipient is unreachable for direct messages, mark them blocked.
		if job.Kind == storage.KindCustom {
			if err := s.dir.SetBlocked(ctx, job.RecipientID, true); err != nil {
				log.Error("marking recipient blocked failed", logx.Err(err))
			}
		} else {
			if err := s.dir.SetNotificationsEnabled(ctx, job.RecipientID, false); err != nil {
				log.Error("disabling notifications failed", logx.Err(err))
			}
		}
		s.markSent(ctx, log, job.ID)
		log.Info("recipient blocked the bot, delivery disabled")
		return OutcomeBlocked

	case transport.ErrRecipientGone:
		// Permanently unreachable: delete the recipient so no future run
		// wastes queue capacity on a dead end. The delete cascades the
		// remaining jobs.
		s.markSent(ctx, log, job.ID)
		if err := s.dir.DeleteRecipient(ctx, job.RecipientID); err != nil {
			log.Error("recipient delete failed", logx.Err(err))
			return OutcomeUnexpected
		}
		log.Info("recipient permanently gone, record deleted")
		return OutcomeNotFound

	case transport.ErrThrottled:
		log.Warn("transport throttled, leaving job pending", logx.Duration("retry_after", se.RetryAfter))
		return OutcomeTransient

	default:
		log.Warn("transient send failure, leaving job pending", logx.Err(se))
		return OutcomeTransient
	}
}

// render resolves job content into message text and send options. The bool
// result is false when the referenced content no longer exists.
func (s *Service) render(ctx context.Context, job storage.Job, rec *storage.Recipient) (string, *transport.SendOptions, bool, error) {
	if job.Kind == storage.KindCustom {
		return job.MessageText, &transport.SendOptions{ParseMode: transport.ParseModeMarkdown}, true, nil
	}

	p, err := s.catalog.Product(ctx, job.ProductID)
	if err != nil {
		return "", nil, false, fmt.Errorf("product %d: %w", job.ProductID, err)
	}
	if p == nil {
		return "", nil, false, nil
	}

	return s.productText(ctx, p, rec), &transport.SendOptions{ParseMode: transport.ParseModeMarkdown, DisablePreview: true}, true, nil
}

func (s *Service) productText(ctx context.Context, p *storage.Product, rec *storage.Recipient) string {
	category := p.Category
	if p.Subcategory != "" {
		// Subcategory labels are localized best effort, literal fallback.
		category += " • " + s.translator.Translate(ctx, p.Subcategory, rec.Language)
	}

	caption := s.translator.Translate(ctx, p.Caption, rec.Language)
	caption = previewText(caption, captionPreviewRunes)

	var b strings.Builder
	b.WriteString("🆕 *New product available!*\n\n")
	b.WriteString("📂 ")
	b.WriteString(category)
	if caption != "" {
		b.WriteString("\n📝 ")
		b.WriteString(caption)
	}
	b.WriteString("\n\nUse /menu to browse the catalog!")
	return b.String()
}

func previewText(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}

func (s *Service) markSent(ctx context.Context, log logx.Logger, jobID int64) {
	if err := s.queue.MarkJobSent(ctx, jobID, s.now()); err != nil {
		// The send already happened; all we can do is flag the risk of a
		// duplicate on the next run.
		log.Error("mark-sent failed after delivery", logx.Err(err))
	}
}
