package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catbot/internal/storage"
	"catbot/pkg/logx"
)

// ErrRecipientBlocked is returned when a targeted custom message is
// requested for a recipient who is blocked.
var ErrRecipientBlocked = errors.New("recipient is blocked")

// EnqueueProductNotification fans a newly categorized product out to every
// subscribed recipient and kicks off a background drain. It returns the
// number of jobs queued.
//
// Uncategorized products and excluded categories never fan out.
func (s *Service) EnqueueProductNotification(ctx context.Context, productID int64) (int, error) {
	cfg := s.config()

	p, err := s.catalog.Product(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("product %d: %w", productID, err)
	}
	if p == nil {
		s.log.Warn("product vanished before fan-out", logx.Int64("product", productID))
		return 0, nil
	}
	if p.Category == "" {
		s.log.Debug("product not categorized, skipping fan-out", logx.Int64("product", productID))
		return 0, nil
	}
	if categoryExcluded(cfg.ExcludedCategories, p.Category) {
		s.log.Info("category excluded from notifications", logx.Int64("product", productID), logx.String("category", p.Category))
		return 0, nil
	}

	ids, err := s.dir.SubscribedRecipients(ctx, cfg.AdminIDs)
	if err != nil {
		return 0, fmt.Errorf("subscribed recipients: %w", err)
	}
	if len(ids) == 0 {
		s.log.Debug("no subscribed recipients to notify")
		return 0, nil
	}

	queued := 0
	for _, id := range ids {
		if _, err := s.queue.EnqueueJob(ctx, storage.Job{
			RecipientID: id,
			Kind:        storage.KindProduct,
			ProductID:   productID,
			CreatedAt:   s.now(),
		}); err != nil {
			return queued, fmt.Errorf("enqueue for recipient %d: %w", id, err)
		}
		queued++
	}

	s.log.Info("product notification queued", logx.Int64("product", productID), logx.Int("recipients", queued))
	s.kick(storage.KindProduct)
	return queued, nil
}

// EnqueueCustomMessage queues a custom message for one recipient and drains
// the custom queue synchronously, returning delivery statistics.
func (s *Service) EnqueueCustomMessage(ctx context.Context, recipientID int64, text string) (Stats, error) {
	blocked, err := s.dir.IsBlocked(ctx, recipientID)
	if err != nil {
		return Stats{}, fmt.Errorf("blocked check for %d: %w", recipientID, err)
	}
	if blocked {
		return Stats{}, ErrRecipientBlocked
	}

	if _, err := s.queue.EnqueueJob(ctx, storage.Job{
		RecipientID: recipientID,
		Kind:        storage.KindCustom,
		MessageText: text,
		CreatedAt:   s.now(),
	}); err != nil {
		return Stats{}, fmt.Errorf("enqueue custom message: %w", err)
	}

	stats, ran := s.Drain(ctx, storage.KindCustom)
	if !ran {
		s.log.Info("custom drain already running, message queued for it")
	}
	return stats, nil
}

// BroadcastCustomMessage queues a custom message for every recipient
// (optionally excluding blocked ones, always excluding admins), drains the
// queue and returns the number queued plus delivery statistics.
func (s *Service) BroadcastCustomMessage(ctx context.Context, text string, excludeBlocked bool) (int, Stats, error) {
	cfg := s.config()

	recipients, err := s.dir.AllRecipients(ctx, excludeBlocked)
	if err != nil {
		return 0, Stats{}, fmt.Errorf("list recipients: %w", err)
	}

	admin := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admin[id] = struct{}{}
	}

	queued := 0
	for _, r := range recipients {
		if _, ok := admin[r.ID]; ok {
			continue
		}
		if _, err := s.queue.EnqueueJob(ctx, storage.Job{
			RecipientID: r.ID,
			Kind:        storage.KindCustom,
			MessageText: text,
			CreatedAt:   s.now(),
		}); err != nil {
			return queued, Stats{}, fmt.Errorf("enqueue broadcast for %d: %w", r.ID, err)
		}
		queued++
	}

	s.log.Info("broadcast queued", logx.Int("recipients", queued))

	stats, ran := s.Drain(ctx, storage.KindCustom)
	if !ran {
		s.log.Info("custom drain already running, broadcast queued for it")
	}
	return queued, stats, nil
}

// kick starts an asynchronous drain for the kind. The single-flight guard
// inside Drain makes overlapping kicks harmless.
func (s *Service) kick(kind storage.JobKind) {
	ctx := s.backgroundCtx()
	go func() {
		if _, ran := s.Drain(ctx, kind); !ran {
			s.log.Debug("drain trigger skipped, one already running", logx.String("kind", string(kind)))
		}
	}()
}

func categoryExcluded(excluded []string, category string) bool {
	for _, e := range excluded {
		if strings.EqualFold(strings.TrimSpace(e), category) {
			return true
		}
	}
	return false
}
