package model

import (
	"encoding/json"
	"time"
)

// RunHistory is one persisted row per job run.
type RunHistory struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	Job        string          `json:"job"`
	Status     string          `json:"status"`
	DurationMs int64           `json:"duration_ms"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
