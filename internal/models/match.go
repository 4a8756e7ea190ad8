package models

import "time"

// AlertMatch is one detection event: a saved alert matched a procurement
// notice for a user. The on-demand test path reads these directly, bypassing
// the digest queue.
type AlertMatch struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	AlertName  string        `json:"alert_name"`
	Record     MatchedRecord `json:"record"`
	DetectedAt time.Time     `json:"detected_at"`
}

// GroupMatches buckets matches by alert name, preserving each group's
// first-seen order.
func GroupMatches(matches []AlertMatch) []AlertGroup {
	index := make(map[string]int)
	var groups []AlertGroup
	for _, m := range matches {
		i, ok := index[m.AlertName]
		if !ok {
			i = len(groups)
			index[m.AlertName] = i
			groups = append(groups, AlertGroup{AlertName: m.AlertName})
		}
		groups[i].Records = append(groups[i].Records, m.Record)
	}
	return groups
}
