package models

// PowerState is the actuation state of the relay board.
type PowerState string

const (
	// PowerEngaged means the configured per-channel defaults are applied.
	PowerEngaged PowerState = "ENGAGED"
	// PowerSaved means every channel is forced off.
	PowerSaved PowerState = "SAVED"
)
