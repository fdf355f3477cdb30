package notify

import "time"

// Outcome is the closed result set of a single job execution. The scheduler
// switches on outcomes; it never inspects transport errors itself.
type Outcome int

const (
	// OutcomeSent: delivered, job marked sent.
	OutcomeSent Outcome = iota
	// OutcomeContentGone: referenced content (or the recipient row) no
	// longer exists. Terminal no-op, job marked sent.
	OutcomeContentGone
	// OutcomeBlocked: recipient blocked the bot. Recipient state updated,
	// job marked sent.
	OutcomeBlocked
	// OutcomeNotFound: recipient permanently gone; recipient deleted with
	// its jobs.
	OutcomeNotFound
	// OutcomeTransient: transport hiccup, job left pending for a later run.
	OutcomeTransient
	// OutcomeFormatRetried: rich formatting was rejected, the plain-text
	// retry succeeded, job marked sent.
	OutcomeFormatRetried
	// OutcomeUnexpected: unclassified failure; logged, job left pending.
	OutcomeUnexpected
	// OutcomeSkipped: no delivery channel available; neither success nor
	// failure, job left pending.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeContentGone:
		return "content_gone"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeTransient:
		return "transient"
	case OutcomeFormatRetried:
		return "format_retried"
	case OutcomeUnexpected:
		return "unexpected"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Stats aggregates delivery outcomes across a scheduler run, shown to the
// triggering admin after a broadcast.
type Stats struct {
	Sent          int
	Retired       int
	Blocked       int
	NotFound      int
	RateLimited   int
	FormatRetried int
	Transient     int
	Unexpected    int
	Skipped       int
}

func (s *Stats) record(o Outcome) {
	switch o {
	case OutcomeSent:
		s.Sent++
	case OutcomeContentGone:
		s.Retired++
	case OutcomeBlocked:
		s.Blocked++
	case OutcomeNotFound:
		s.NotFound++
	case OutcomeFormatRetried:
		s.Sent++
		s.FormatRetried++
	case OutcomeTransient:
		s.Transient++
	case OutcomeUnexpected:
		s.Unexpected++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Add merges another run's counters.
func (s *Stats) Add(o Stats) {
	s.Sent += o.Sent
	s.Retired += o.Retired
	s.Blocked += o.Blocked
	s.NotFound += o.NotFound
	s.RateLimited += o.RateLimited
	s.FormatRetried += o.FormatRetried
	s.Transient += o.Transient
	s.Unexpected += o.Unexpected
	s.Skipped += o.Skipped
}

// Tuning holds the per-job-kind pacing knobs.
type Tuning struct {
	MaxPerHour int
	BatchSize  int
	BatchDelay time.Duration
}

// Config tunes the delivery engine. Zero values fall back to the defaults
// below, which mirror the production constants this engine was tuned with.
type Config struct {
	Product Tuning
	Custom  Tuning

	StaggerGroupSize int
	StaggerInterval  time.Duration

	PageSize      int
	MaxIterations int
	PagePause     time.Duration

	// ExcludedCategories never fan out as product notifications.
	ExcludedCategories []string

	// AdminIDs are excluded from fan-out and broadcasts.
	AdminIDs []int64
}

const rateWindow = 60 * time.Minute

func (c Config) withDefaults() Config {
	if c.Product.MaxPerHour <= 0 {
		c.Product.MaxPerHour = 5
	}
	if c.Product.BatchSize <= 0 {
		c.Product.BatchSize = 10
	}
	if c.Product.BatchDelay <= 0 {
		c.Product.BatchDelay = 3 * time.Second
	}
	if c.Custom.MaxPerHour <= 0 {
		c.Custom.MaxPerHour = 3
	}
	if c.Custom.BatchSize <= 0 {
		c.Custom.BatchSize = 5
	}
	if c.Custom.BatchDelay <= 0 {
		c.Custom.BatchDelay = 5 * time.Second
	}
	// Never let the group size reach zero: the stagger loop steps by it,
	// so a non-positive value would stall the drain.
	if c.StaggerGroupSize <= 0 {
		c.StaggerGroupSize = 10
	}
	if c.StaggerInterval <= 0 {
		c.StaggerInterval = 10 * time.Second
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 50
	}
	if c.PagePause <= 0 {
		c.PagePause = 2 * time.Second
	}
	return c
}
