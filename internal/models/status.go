package models

import "time"

// NoPictureYet is the last-picture marker before the first saved capture.
const NoPictureYet = "No photo yet!"

// StatusSnapshot is the live telemetry record rendered on the status display.
type StatusSnapshot struct {
	CameraAvailable  bool                `json:"camera_available"`
	DisplayAvailable bool                `json:"display_available"`
	UpSince          time.Time           `json:"up_since"`
	LastPicture      string              `json:"last_picture"`      // timestamp string of the last saved picture
	PictureCount     int                 `json:"picture_count"`     // pictures stored in the picture folder
	FreeSlots        int                 `json:"free_slots"`        // estimated pictures that still fit on disk
	PollTime         time.Time           `json:"poll_time"`
	Addresses        map[string][]string `json:"addresses,omitempty"` // interface -> IPv4 addresses
	Buttons          map[int]string      `json:"buttons,omitempty"`   // button id -> label
	PowerSave        bool                `json:"power_save"`
	Relays           map[int]bool        `json:"relays,omitempty"`
	WindSpeed        float64             `json:"wind_speed"`
	Temperature      float64             `json:"temperature"`
}

// Clone returns a deep copy so readers never share maps with the writer.
func (s StatusSnapshot) Clone() StatusSnapshot {
	out := s
	if s.Addresses != nil {
		out.Addresses = make(map[string][]string, len(s.Addresses))
		for k, v := range s.Addresses {
			out.Addresses[k] = append([]string(nil), v...)
		}
	}
	if s.Buttons != nil {
		out.Buttons = make(map[int]string, len(s.Buttons))
		for k, v := range s.Buttons {
			out.Buttons[k] = v
		}
	}
	if s.Relays != nil {
		out.Relays = make(map[int]bool, len(s.Relays))
		for k, v := range s.Relays {
			out.Relays[k] = v
		}
	}
	return out
}
