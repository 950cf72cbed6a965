// Package hardware holds the station's device collaborators: the camera,
// the relay board, the status display with its keys, and the startup probe
// that decides which of them are real.
package hardware

import (
	"os/exec"

	"mothstation/internal/logger"
)

// Camera driver kinds reported by Discover.
const (
	CameraGPhoto    = "gphoto2"
	CameraSimulated = "simulated"
)

// Capabilities is the result of the startup hardware probe.
type Capabilities struct {
	CameraDriver CameraDriver
	CameraKind   string
	Relay        *RelayBoard
	// ButtonPins is nil when the HAT keys could not be claimed.
	ButtonPins map[int]EdgePin
	// Panel is nil when no e-paper panel is attached.
	Panel FrameSink
}

// RelayOnline reports whether relay writes reach real pins.
func (c Capabilities) RelayOnline() bool { return c.Relay != nil && c.Relay.Online() }

// Discover probes for the camera tool and the GPIO header once at startup.
// With simulate set, nothing is probed and every device is simulated.
func Discover(simulate bool, log *logger.Logger) Capabilities {
	if log == nil {
		log = logger.Nop()
	}
	caps := Capabilities{}

	switch {
	case simulate:
		caps.CameraDriver, caps.CameraKind = NewSimulatedDriver(), CameraSimulated
	default:
		if _, err := exec.LookPath("gphoto2"); err != nil {
			log.Warnw("gphoto2_not_found", "err", err)
			caps.CameraDriver, caps.CameraKind = NewSimulatedDriver(), CameraSimulated
		} else {
			caps.CameraDriver, caps.CameraKind = NewGPhotoDriver(), CameraGPhoto
		}
	}

	if simulate {
		caps.Relay = NewOfflineRelayBoard(log)
	} else if b, err := OpenGPIORelayBoard(log); err != nil {
		log.Errorw("relay_board_unavailable", "err", err)
		caps.Relay = NewOfflineRelayBoard(log)
	} else {
		caps.Relay = b
	}

	if !simulate {
		pins, err := OpenButtonPins()
		if err != nil {
			log.Warnw("buttons_unavailable", "err", err)
		} else {
			caps.ButtonPins = pins
		}
	}

	log.Infow("hardware_discovered",
		"camera", caps.CameraKind,
		"relay_online", caps.RelayOnline(),
		"buttons", caps.ButtonPins != nil,
		"panel", caps.Panel != nil,
	)
	return caps
}
