// Package notify is the delivery engine: it queues per-recipient messages,
// enforces hourly per-recipient ceilings, routes each send through the bot
// instance the recipient originally contacted, staggers delivery to avoid
// burst-pattern spam detection, and classifies failures into recipient-state
// transitions.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"catbot/internal/storage"
	"catbot/internal/transport"
	"catbot/internal/translate"
	"catbot/pkg/logx"
)

// Queue is the persistent job queue contract (satisfied by *storage.Store).
type Queue interface {
	EnqueueJob(ctx context.Context, j storage.Job) (int64, error)
	PendingJobs(ctx context.Context, kind storage.JobKind, limit int) ([]storage.Job, error)
	MarkJobSent(ctx context.Context, jobID int64, at time.Time) error
	RecentSendCount(ctx context.Context, recipientID int64, kind storage.JobKind, since time.Time) (int, error)
}

// Directory is the recipient-state contract (satisfied by *storage.Store).
type Directory interface {
	Recipient(ctx context.Context, id int64) (*storage.Recipient, error)
	SubscribedRecipients(ctx context.Context, exclude []int64) ([]int64, error)
	AllRecipients(ctx context.Context, excludeBlocked bool) ([]storage.Recipient, error)
	IsBlocked(ctx context.Context, id int64) (bool, error)
	SetNotificationsEnabled(ctx context.Context, id int64, enabled bool) error
	SetBlocked(ctx context.Context, id int64, blocked bool) error
	DeleteRecipient(ctx context.Context, id int64) error
}

// Catalog resolves product references (satisfied by *storage.Store).
type Catalog interface {
	Product(ctx context.Context, id int64) (*storage.Product, error)
}

// Router resolves a recipient's delivery channel to a live connection
// (satisfied by *registry.Registry).
type Router interface {
	ResolveOrDefault(channelID string) transport.Sender
	Len() int
}

type Service struct {
	queue      Queue
	dir        Directory
	catalog    Catalog
	router     Router
	translator translate.Translator
	log        logx.Logger

	mu  sync.Mutex
	cfg Config

	// Single-flight per kind: a trigger while a drain is already running
	// for that kind is skipped, never stacked.
	productRun atomic.Bool
	customRun  atomic.Bool

	// runCtx bounds background drains kicked off by enqueue triggers.
	ctxMu  sync.Mutex
	runCtx context.Context

	// test seams
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, queue Queue, dir Directory, catalog Catalog, router Router, tr translate.Translator, log logx.Logger) *Service {
	if tr == nil {
		tr = translate.Noop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg.withDefaults(),
		queue:      queue,
		dir:        dir,
		catalog:    catalog,
		router:     router,
		translator: tr,
		log:        log,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Start installs the context used for background drains. Without it,
// triggers fall back to context.Background().
func (s *Service) Start(ctx context.Context) {
	s.ctxMu.Lock()
	s.runCtx = ctx
	s.ctxMu.Unlock()
}

// Apply swaps tuning at runtime (config reload). In-flight drains finish
// with the tuning they started with.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) backgroundCtx() context.Context {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

func (s *Service) runFlag(kind storage.JobKind) *atomic.Bool {
	if kind == storage.KindCustom {
		return &s.customRun
	}
	return &s.productRun
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
