package models

import (
	"time"
)

// TriggerRun represents one completed trigger run
type TriggerRun struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	JobName    string    `json:"job_name"`
	Params     string    `json:"params"`
	BuildURL   string    `json:"build_url,omitempty"`
	Result     string    `json:"result"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}
