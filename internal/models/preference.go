package models

import "time"

// NotificationPreference is the per-user delivery override. EmailOverride, when
// set, takes precedence over the account's primary address; OptOut is a hard
// precondition failure for any send.
type NotificationPreference struct {
	UserID        string    `json:"user_id"`
	EmailOverride *string   `json:"email_override,omitempty"`
	OptOut        bool      `json:"opt_out"`
	UpdatedAt     time.Time `json:"updated_at"`
}
