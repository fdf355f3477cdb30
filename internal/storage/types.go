package storage

import "time"

// JobKind selects which delivery pipeline a queued job belongs to.
// Rate limits are tracked independently per kind.
type JobKind string

const (
	KindProduct JobKind = "product"
	KindCustom  JobKind = "custom"
)

// Job is one pending (or sent) delivery: a product notification or a
// custom admin message for a single recipient.
type Job struct {
	ID          int64
	RecipientID int64
	Kind        JobKind
	ProductID   int64  // set for KindProduct
	MessageText string // set for KindCustom
	CreatedAt   time.Time
	SentAt      time.Time // zero while pending
}

// Recipient is a tracked end user of one of the bot instances.
type Recipient struct {
	ID                   int64
	Username             string
	DeliveryChannel      string // username of the bot this user contacted; "" if unknown
	NotificationsEnabled bool
	Blocked              bool
	Language             string
	FirstSeen            time.Time
	LastSeen             time.Time
}

// Product is a catalog item ingested from the channel.
type Product struct {
	ID          int64
	FileID      string
	FileType    string
	Caption     string
	Category    string
	Subcategory string
	CreatedAt   time.Time
}
