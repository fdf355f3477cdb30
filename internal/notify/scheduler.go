package notify

import (
	"context"

	"github.com/google/uuid"

	"catbot/internal/storage"
	"catbot/pkg/logx"
)

type recipientJobs struct {
	recipientID int64
	jobs        []storage.Job
}

// Drain processes the pending queue for one job kind until it is empty or
// no further progress is possible. At most one drain per kind runs at a
// time; a concurrent trigger is skipped and reports ran=false.
func (s *Service) Drain(ctx context.Context, kind storage.JobKind) (Stats, bool) {
	flag := s.runFlag(kind)
	if !flag.CompareAndSwap(false, true) {
		s.log.Debug("drain already in flight, skipping", logx.String("kind", string(kind)))
		return Stats{}, false
	}
	defer flag.Store(false)

	return s.drain(ctx, kind), true
}

func (s *Service) drain(ctx context.Context, kind storage.JobKind) Stats {
	cfg := s.config()
	tuning := cfg.Product
	if kind == storage.KindCustom {
		tuning = cfg.Custom
	}

	// Every run gets an id so the staggered pieces of one drain can be
	// correlated in the logs.
	log := s.log.With(logx.String("run", uuid.NewString()), logx.String("kind", string(kind)))

	var stats Stats
	// Recipients found rate-limited in this run stay excluded for the rest
	// of it; their jobs wait for a later scheduled drain. This also
	// guarantees termination when the store keeps returning the same
	// unsendable page.
	limited := map[int64]bool{}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if ctx.Err() != nil {
			break
		}

		page, err := s.queue.PendingJobs(ctx, kind, cfg.PageSize)
		if err != nil {
			// A store failure aborts the run; nothing was marked sent for
			// the unprocessed remainder, so the next trigger re-attempts.
			log.Error("pending fetch failed, aborting drain", logx.Err(err))
			break
		}
		if len(page) == 0 {
			break
		}

		groups := groupByRecipient(page)

		eligible := make([]recipientJobs, 0, len(groups))
		allKnownLimited := true
		for _, g := range groups {
			if limited[g.recipientID] {
				continue
			}
			allKnownLimited = false

			allowed, err := s.allowedCount(ctx, cfg, g.recipientID, kind)
			if err != nil {
				log.Error("rate check failed", logx.Int64("recipient", g.recipientID), logx.Err(err))
				continue
			}
			if allowed == 0 {
				limited[g.recipientID] = true
				stats.RateLimited += len(g.jobs)
				continue
			}
			jobs := g.jobs
			if len(jobs) > allowed {
				jobs = jobs[:allowed]
			}
			eligible = append(eligible, recipientJobs{recipientID: g.recipientID, jobs: jobs})
		}

		// Termination guard: a page made up entirely of already-known
		// rate-limited recipients can never make progress.
		if len(eligible) == 0 && allKnownLimited {
			break
		}

		if len(eligible) >= cfg.StaggerGroupSize {
			log.Info("staggered delivery",
				logx.Int("recipients", len(eligible)),
				logx.Int("group_size", cfg.StaggerGroupSize))

			for start := 0; start < len(eligible); start += cfg.StaggerGroupSize {
				end := min(start+cfg.StaggerGroupSize, len(eligible))
				s.sendBatches(ctx, flatten(eligible[start:end]), tuning, &stats)

				if end < len(eligible) {
					if err := s.sleep(ctx, cfg.StaggerInterval); err != nil {
						return stats
					}
				}
			}
		} else if len(eligible) > 0 {
			s.sendBatches(ctx, flatten(eligible), tuning, &stats)
		}

		// A short page means the queue is (momentarily) drained.
		if len(page) < cfg.PageSize {
			break
		}
		if err := s.sleep(ctx, cfg.PagePause); err != nil {
			break
		}
	}

	log.Info("drain finished",
		logx.Int("sent", stats.Sent),
		logx.Int("retired", stats.Retired),
		logx.Int("rate_limited", stats.RateLimited),
		logx.Int("blocked", stats.Blocked),
		logx.Int("not_found", stats.NotFound),
		logx.Int("transient", stats.Transient),
		logx.Int("unexpected", stats.Unexpected))
	return stats
}

// sendBatches dispatches jobs in sub-batches with a pause between them
// (none after the last).
func (s *Service) sendBatches(ctx context.Context, jobs []storage.Job, tuning Tuning, stats *Stats) {
	for start := 0; start < len(jobs); start += tuning.BatchSize {
		end := min(start+tuning.BatchSize, len(jobs))
		for _, j := range jobs[start:end] {
			if ctx.Err() != nil {
				return
			}
			stats.record(s.sendOne(ctx, j))
		}
		if end < len(jobs) {
			if err := s.sleep(ctx, tuning.BatchDelay); err != nil {
				return
			}
		}
	}
}

// groupByRecipient buckets a page by recipient, preserving both the
// recipients' first-seen order and each recipient's job order (FIFO by
// created_at, as fetched).
func groupByRecipient(page []storage.Job) []recipientJobs {
	index := map[int64]int{}
	out := make([]recipientJobs, 0, len(page))
	for _, j := range page {
		i, ok := index[j.RecipientID]
		if !ok {
			i = len(out)
			index[j.RecipientID] = i
			out = append(out, recipientJobs{recipientID: j.RecipientID})
		}
		out[i].jobs = append(out[i].jobs, j)
	}
	return out
}

func flatten(groups []recipientJobs) []storage.Job {
	n := 0
	for _, g := range groups {
		n += len(g.jobs)
	}
	out := make([]storage.Job, 0, n)
	for _, g := range groups {
		out = append(out, g.jobs...)
	}
	return out
}
