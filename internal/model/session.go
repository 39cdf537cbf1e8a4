package model

import "time"

// ScrapeSessionLog is the outcome of one orchestrator run for one retailer.
type ScrapeSessionLog struct {
	ID           string    `json:"id"`
	Retailer     string    `json:"retailer"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	ItemsFound   int       `json:"items_found"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   *int64    `json:"duration_ms,omitempty"`
}

// Duration returns the recorded duration, or the wall-clock difference when
// DurationMs was not set.
func (s ScrapeSessionLog) Duration() time.Duration {
	if s.DurationMs != nil {
		return time.Duration(*s.DurationMs) * time.Millisecond
	}
	if s.CompletedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}
