package hardware

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"mothstation/internal/logger"
)

// Relay channels on the HAT.
const (
	MinChannel = 1
	MaxChannel = 3
)

// ErrInvalidChannel is returned for a channel outside MinChannel..MaxChannel.
var ErrInvalidChannel = errors.New("relay channel out of range")

// relayPins maps channel to the BCM pin driving it. The board is active low.
var relayPins = map[int]string{
	1: "GPIO26",
	2: "GPIO20",
	3: "GPIO21",
}

// LevelWriter drives one relay output.
type LevelWriter interface {
	Out(l gpio.Level) error
}

type memoryOutput struct{ level gpio.Level }

func (m *memoryOutput) Out(l gpio.Level) error {
	m.level = l
	return nil
}

// RelayBoard switches the relay channels and mirrors their state.
type RelayBoard struct {
	mu      sync.Mutex
	outputs map[int]LevelWriter
	states  map[int]bool
	online  bool
	log     *logger.Logger
}

// NewRelayBoard wraps the given outputs. Channels missing from outputs are
// rejected with ErrInvalidChannel.
func NewRelayBoard(outputs map[int]LevelWriter, online bool, log *logger.Logger) *RelayBoard {
	if log == nil {
		log = logger.Nop()
	}
	states := make(map[int]bool, len(outputs))
	for ch := range outputs {
		states[ch] = false
	}
	return &RelayBoard{outputs: outputs, states: states, online: online, log: log}
}

// OpenGPIORelayBoard initialises the host drivers and claims the relay pins.
func OpenGPIORelayBoard(log *logger.Logger) (*RelayBoard, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	outputs := make(map[int]LevelWriter, len(relayPins))
	for ch, name := range relayPins {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("relay channel %d: pin %s not found", ch, name)
		}
		outputs[ch] = p
	}
	b := NewRelayBoard(outputs, true, log)
	if err := b.Reset(); err != nil {
		return nil, err
	}
	return b, nil
}

// NewOfflineRelayBoard tracks channel state without touching any pin.
func NewOfflineRelayBoard(log *logger.Logger) *RelayBoard {
	outputs := make(map[int]LevelWriter, len(relayPins))
	for ch := range relayPins {
		outputs[ch] = &memoryOutput{level: gpio.High}
	}
	return NewRelayBoard(outputs, false, log)
}

// Online reports whether the board drives real pins.
func (b *RelayBoard) Online() bool { return b.online }

// SetOn energizes a channel.
func (b *RelayBoard) SetOn(channel int) error { return b.set(channel, true) }

// SetOff de-energizes a channel.
func (b *RelayBoard) SetOff(channel int) error { return b.set(channel, false) }

func (b *RelayBoard) set(channel int, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setLocked(channel, on)
}

func (b *RelayBoard) setLocked(channel int, on bool) error {
	out, ok := b.outputs[channel]
	if !ok || channel < MinChannel || channel > MaxChannel {
		b.log.Errorw("relay_invalid_channel", "channel", channel)
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	level := gpio.High
	if on {
		level = gpio.Low
	}
	if err := out.Out(level); err != nil {
		b.log.Errorw("relay_set_failed", "channel", channel, "on", on, "err", err)
		return fmt.Errorf("relay channel %d: %w", channel, err)
	}
	b.states[channel] = on
	b.log.Infow("relay_set", "channel", channel, "on", on, "online", b.online)
	return nil
}

// Reset switches every channel off.
func (b *RelayBoard) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, ch := range b.channelsLocked() {
		if err := b.setLocked(ch, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// States returns a copy of the channel states.
func (b *RelayBoard) States() map[int]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int]bool, len(b.states))
	for ch, on := range b.states {
		out[ch] = on
	}
	return out
}

func (b *RelayBoard) channelsLocked() []int {
	chs := make([]int, 0, len(b.outputs))
	for ch := range b.outputs {
		chs = append(chs, ch)
	}
	sort.Ints(chs)
	return chs
}
