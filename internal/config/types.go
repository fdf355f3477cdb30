package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Translate TranslateConfig `json:"translate,omitempty"`
}

type TelegramConfig struct {
	// Tokens lists the bot instances to run. The first token is the
	// primary bot: it carries the admin command surface and acts as the
	// fallback delivery channel.
	Tokens   []string `json:"tokens"`
	AdminIDs []int64  `json:"admin_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// DeliveryConfig tunes the notification delivery engine.
//
// All durations are Go duration strings (e.g. "3s", "10s").
// Zero/omitted fields fall back to the defaults listed per field.
type DeliveryConfig struct {
	// Product notification pipeline.
	Product KindTuning `json:"product"`
	// Custom (admin) message pipeline.
	Custom KindTuning `json:"custom"`

	// StaggerGroupSize splits eligible recipients into groups of this size
	// when at least this many are eligible. Default 10.
	StaggerGroupSize int `json:"stagger_group_size,omitempty"`
	// StaggerInterval is the pause between recipient groups. Default "10s".
	StaggerInterval string `json:"stagger_interval,omitempty"`

	// PageSize bounds each pending-queue fetch. Default 100.
	PageSize int `json:"page_size,omitempty"`
	// MaxIterations caps scheduler loop passes per invocation. Default 50.
	MaxIterations int `json:"max_iterations,omitempty"`
	// PagePause is the pause between full pages. Default "2s".
	PagePause string `json:"page_pause,omitempty"`

	// SendRatePerSec is a global per-channel messages/second floor under
	// the hourly ceilings. Default 25.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`

	// RetrySchedule is a cron expression for periodic queue drains, so
	// jobs left pending by rate limits or transient failures are retried.
	// Default "*/10 * * * *". Empty string together with RetryDisabled
	// is not distinguished; set RetryDisabled to turn drains off.
	RetrySchedule string `json:"retry_schedule,omitempty"`
	RetryDisabled bool   `json:"retry_disabled,omitempty"`

	// ExcludedCategories lists product categories that never fan out.
	ExcludedCategories []string `json:"excluded_categories,omitempty"`
}

// KindTuning holds the per-job-kind knobs.
type KindTuning struct {
	// MaxPerHour is the per-recipient hourly ceiling.
	// Defaults: product 5, custom 3.
	MaxPerHour int `json:"max_per_hour,omitempty"`
	// BatchSize is the sub-batch size. Defaults: product 10, custom 5.
	BatchSize int `json:"batch_size,omitempty"`
	// BatchDelay is the pause between sub-batches.
	// Defaults: product "3s", custom "5s".
	BatchDelay string `json:"batch_delay,omitempty"`
}

type TranslateConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint,omitempty"`
	// Timeout is a Go duration string. Default "5s".
	Timeout string `json:"timeout,omitempty"`
}
