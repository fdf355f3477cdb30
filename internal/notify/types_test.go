package notify

import (
	"testing"
	"time"
)

func TestConfigDefaultsClampNonPositiveValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Config
	}{
		{"zero value", Config{}},
		{"negative knobs", Config{
			Product:          Tuning{MaxPerHour: -1, BatchSize: -1, BatchDelay: -time.Second},
			Custom:           Tuning{MaxPerHour: -1, BatchSize: -1, BatchDelay: -time.Second},
			StaggerGroupSize: -1,
			StaggerInterval:  -time.Second,
			PageSize:         -1,
			MaxIterations:    -1,
			PagePause:        -time.Second,
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.in.withDefaults()
			if got.Product.MaxPerHour != 5 || got.Product.BatchSize != 10 || got.Product.BatchDelay != 3*time.Second {
				t.Errorf("product tuning = %+v", got.Product)
			}
			if got.Custom.MaxPerHour != 3 || got.Custom.BatchSize != 5 || got.Custom.BatchDelay != 5*time.Second {
				t.Errorf("custom tuning = %+v", got.Custom)
			}
			if got.StaggerGroupSize != 10 {
				t.Errorf("stagger group size = %d, want 10", got.StaggerGroupSize)
			}
			if got.StaggerInterval != 10*time.Second || got.PagePause != 2*time.Second {
				t.Errorf("pauses = %v / %v", got.StaggerInterval, got.PagePause)
			}
			if got.PageSize != 100 || got.MaxIterations != 50 {
				t.Errorf("paging = %d / %d", got.PageSize, got.MaxIterations)
			}
		})
	}
}

func TestStatsKeepsRetirementsOutOfSent(t *testing.T) {
	t.Parallel()

	var s Stats
	s.record(OutcomeSent)
	s.record(OutcomeContentGone)
	s.record(OutcomeContentGone)
	s.record(OutcomeFormatRetried)
	if s.Sent != 2 {
		t.Fatalf("sent = %d, want 2 (retired jobs are not deliveries)", s.Sent)
	}
	if s.Retired != 2 {
		t.Fatalf("retired = %d, want 2", s.Retired)
	}
	if s.FormatRetried != 1 {
		t.Fatalf("format_retried = %d, want 1", s.FormatRetried)
	}

	var total Stats
	total.Add(s)
	total.Add(Stats{Retired: 1})
	if total.Retired != 3 || total.Sent != 2 {
		t.Fatalf("merged = %+v", total)
	}
}
