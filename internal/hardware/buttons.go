package hardware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"mothstation/internal/logger"
)

// buttonPins maps button id to the BCM pin of the HAT key.
var buttonPins = map[int]string{
	1: "GPIO5",
	2: "GPIO6",
	3: "GPIO13",
	4: "GPIO19",
}

const (
	edgeWaitTimeout = time.Second
	debounce        = 200 * time.Millisecond
)

// EdgePin is the part of gpio.PinIn the watcher needs.
type EdgePin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// ButtonEvent is one debounced key press.
type ButtonEvent struct {
	Button int
	At     time.Time
}

// OpenButtonPins claims the HAT key pins.
func OpenButtonPins() (map[int]EdgePin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	pins := make(map[int]EdgePin, len(buttonPins))
	for id, name := range buttonPins {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("button %d: pin %s not found", id, name)
		}
		pins[id] = p
	}
	return pins, nil
}

// WatchButtons configures each pin as pulled-up input with falling edge
// detection and emits presses until ctx is done. The channel is closed when
// every watcher has exited.
func WatchButtons(ctx context.Context, pins map[int]EdgePin, log *logger.Logger) (<-chan ButtonEvent, error) {
	if log == nil {
		log = logger.Nop()
	}
	for id, p := range pins {
		if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			return nil, fmt.Errorf("button %d: %w", id, err)
		}
	}

	events := make(chan ButtonEvent)
	var wg sync.WaitGroup
	for id, p := range pins {
		wg.Add(1)
		go func(id int, p EdgePin) {
			defer wg.Done()
			var last time.Time
			for ctx.Err() == nil {
				if !p.WaitForEdge(edgeWaitTimeout) || p.Read() != gpio.Low {
					continue
				}
				now := time.Now()
				if now.Sub(last) < debounce {
					continue
				}
				last = now
				select {
				case events <- ButtonEvent{Button: id, At: now}:
				case <-ctx.Done():
					return
				}
			}
		}(id, p)
	}
	go func() {
		wg.Wait()
		close(events)
		log.Infow("button_watch_stopped")
	}()
	return events, nil
}

// Dispatch feeds button events to the display's handlers until the channel
// closes or ctx is done.
func (d *Display) Dispatch(ctx context.Context, events <-chan ButtonEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Press(ev.Button)
		}
	}
}
