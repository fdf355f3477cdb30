package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations in the config file are Go duration strings such as "3s" or
// "1m30s". An empty (or blank) value means the field was left unset and
// parses to zero, letting the caller choose its own default.

// ParseDurationField parses the duration field at path. Every duration in
// this config is a pause, delay or timeout, so negatives are rejected here
// rather than left for the delivery loop to trip over.
func ParseDurationField(path, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: bad duration %q (want forms like \"3s\" or \"1m30s\")", path, raw)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback: an unset
// field resolves to def instead of zero. Pacing knobs use it so an omitted
// field gets the engine default rather than a zero-length pause.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
