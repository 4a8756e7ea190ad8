package models

import "time"

type DigestKind string

const (
	DigestKindMorning DigestKind = "morning"
	DigestKindEvening DigestKind = "evening"
	DigestKindTest    DigestKind = "test"
)

type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSent    QueueStatus = "sent"
	QueueStatusFailed  QueueStatus = "failed"
)

// MatchedRecord is a frozen snapshot of a procurement notice at the moment a
// saved alert matched it. It is never refreshed from the live notice.
type MatchedRecord struct {
	Reference       string     `json:"reference"`
	Title           string     `json:"title"`
	Buyer           string     `json:"buyer"`
	Description     string     `json:"description"`
	EstimatedAmount *float64   `json:"estimated_amount,omitempty"`
	Location        *string    `json:"location,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	SourceURL       *string    `json:"source_url,omitempty"`
	Category        *string    `json:"category,omitempty"`
}

// AlertGroup holds the records matched by one saved alert. Group order inside
// a digest is the insertion order and is preserved for display.
type AlertGroup struct {
	AlertName string          `json:"alert_name"`
	Records   []MatchedRecord `json:"records"`
}

// QueueItem is one unit of scheduled digest work. The payload (Groups) is
// immutable once enqueued; the dispatcher only ever transitions Status.
type QueueItem struct {
	ID               string       `json:"id"`
	RecipientUserID  string       `json:"recipient_user_id"`
	Kind             DigestKind   `json:"digest_kind"`
	Groups           []AlertGroup `json:"groups"`
	TotalRecordCount int          `json:"total_record_count"`
	ScheduledFor     time.Time    `json:"scheduled_for"`
	Status           QueueStatus  `json:"status"`
	ErrorMessage     *string      `json:"error_message,omitempty"`
	SentAt           *time.Time   `json:"sent_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// TotalRecords sums the records across all groups.
func TotalRecords(groups []AlertGroup) int {
	total := 0
	for _, g := range groups {
		total += len(g.Records)
	}
	return total
}
