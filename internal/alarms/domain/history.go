package alarms

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusReset    = "reset"
)

// History pagination bounds.
const (
	HistoryLimitMin = 1
	HistoryLimitMax = 200
)

// HistoryEntry is one append-only alarm transition record. DefinitionID
// is nil for manual reset entries.
type HistoryEntry struct {
	ID           string    `json:"id"`
	DefinitionID *string   `json:"definition_id"`
	Status       string    `json:"status"`
	Identifier   string    `json:"identifier"`
	RawValue     int64     `json:"raw_value"`
	Priority     Priority  `json:"priority,omitempty"`
	TextKey      string    `json:"text_key,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ClampHistoryPage normalizes limit and offset for history queries.
func ClampHistoryPage(limit, offset int) (int, int) {
	if limit < HistoryLimitMin {
		limit = HistoryLimitMin
	}
	if limit > HistoryLimitMax {
		limit = HistoryLimitMax
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
