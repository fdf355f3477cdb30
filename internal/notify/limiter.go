package notify

import (
	"context"

	"catbot/internal/storage"
)

// allowedCount returns how many more sends of the given kind the recipient
// may receive in the current hour window (0..ceiling). The two kinds have
// independent ceilings and independent windows.
func (s *Service) allowedCount(ctx context.Context, cfg Config, recipientID int64, kind storage.JobKind) (int, error) {
	ceiling := cfg.Product.MaxPerHour
	if kind == storage.KindCustom {
		ceiling = cfg.Custom.MaxPerHour
	}

	recent, err := s.queue.RecentSendCount(ctx, recipientID, kind, s.now().Add(-rateWindow))
	if err != nil {
		return 0, err
	}
	if recent >= ceiling {
		return 0, nil
	}
	return ceiling - recent, nil
}
