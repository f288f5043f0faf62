package domain

import "time"

// SendStatus is the lifecycle state of a single tracking row. pending,
// processing, accepted, sent, deferred are transient; delivered, bounced,
// dropped, failed, skipped are terminal.
type SendStatus string

const (
	SendPending    SendStatus = "pending"
	SendProcessing SendStatus = "processing"
	SendAccepted   SendStatus = "accepted"
	SendSent       SendStatus = "sent"
	SendDelivered  SendStatus = "delivered"
	SendDeferred   SendStatus = "deferred"
	SendBounced    SendStatus = "bounced"
	SendDropped    SendStatus = "dropped"
	SendFailed     SendStatus = "failed"
	SendSkipped    SendStatus = "skipped"
)

// IsTerminal reports whether a send status is a final resting state that
// the reconciler and executor will never transition out of.
func (s SendStatus) IsTerminal() bool {
	switch s {
	case SendDelivered, SendBounced, SendDropped, SendFailed, SendSkipped:
		return true
	default:
		return false
	}
}

// SendMode selects the recipient resolution policy for a tracking row.
type SendMode string

const (
	ModeTest       SendMode = "test"
	ModeProduction SendMode = "production"
)

// BatchScope filters which scheduled events become rows at batch init time.
type BatchScope string

const (
	ScopeToday      BatchScope = "today"
	ScopeNext7Days  BatchScope = "next_7_days"
	ScopeNext30Days BatchScope = "next_30_days"
	ScopeNext90Days BatchScope = "next_90_days"
	ScopeAll        BatchScope = "all"
	ScopeBulk       BatchScope = "bulk"
)

// TrackingRow is the persistent record of one planned or attempted send.
type TrackingRow struct {
	ID                int64
	OrgID             string
	ContactID         string
	EmailType         EmailType
	ScheduledDate     time.Time
	SendStatus        SendStatus
	SendMode          SendMode
	TestRecipient     string
	AttemptCount      int
	LastAttemptAt     *time.Time
	LastError         string
	BatchID           string
	ProviderMessageID string
	DeliveryStatus    string
	StatusCheckedAt   *time.Time
	StatusDetails     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BatchCounts is the aggregate count of rows by send status within a batch,
// as reported by Store.BatchStatus.
type BatchCounts struct {
	BatchID              string
	Total                int
	Pending              int
	Processing           int
	Sent                 int
	Delivered            int
	Failed               int
	Deferred             int
	Bounced              int
	Dropped              int
	Skipped              int
	CompletionPercentage float64
	DeliveryPercentage   float64
}
