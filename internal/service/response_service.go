package service

import "time"

// Relay requests accepted by Power.SetRelais.
const (
	RelayOn  = "on"
	RelayOff = "off"
)

// Capture outcomes.
const (
	OutcomeSaved   = "saved"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// CaptureResult describes one capture cycle.
type CaptureResult struct {
	Outcome string `json:"outcome"`
	// Picture is the timestamp name of the saved picture, if any.
	Picture string `json:"picture,omitempty"`
	Path    string `json:"path,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// LogFilter selects journal entries by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "CAPTURE_SAVED", "RELAY", ...
}
