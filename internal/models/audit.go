package models

import "time"

// DigestAuditRecord proves a digest was rendered and sent: one append-only row
// per successful delivery, scheduled or test, with the full body kept for
// support and traceability.
type DigestAuditRecord struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Kind            DigestKind `json:"digest_kind"`
	AlertsTriggered int        `json:"alerts_triggered"`
	MarketsIncluded int        `json:"markets_included"`
	Recipient       string     `json:"recipient"`
	Body            string     `json:"-"`
	SentAt          time.Time  `json:"sent_at"`
}
