package models

import "time"

// Event types written to the station journal.
const (
	EventStart          = "START"
	EventStop           = "STOP"
	EventCaptureSaved   = "CAPTURE_SAVED"
	EventCaptureSkipped = "CAPTURE_SKIPPED"
	EventCaptureFailed  = "CAPTURE_FAILED"
	EventRelay          = "RELAY"
	EventWeather        = "WEATHER"
	EventStatusError    = "STATUS_ERROR"
	EventRestart        = "RESTART"
	EventConfig         = "CONFIG"
)

// StationEvent is a single journal entry.
type StationEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
