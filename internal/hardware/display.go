package hardware

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"mothstation/internal/logger"
)

// Panel geometry of the 2.7" e-paper HAT in landscape.
const (
	PanelWidth  = 264
	PanelHeight = 176

	lineHeight = 17
	lineIndent = 10
)

// Button ids on the HAT.
const (
	MinButton = 1
	MaxButton = 4
)

var ErrInvalidButton = errors.New("button id out of range")

// FrameSink pushes a rendered frame to a physical panel.
type FrameSink interface {
	Show(img image.Image) error
	Close() error
}

// Page is the text content of one status frame.
type Page struct {
	Title string
	Lines []string
}

// Display renders pages, keeps an optional file copy of each frame and
// dispatches button presses to registered handlers.
type Display struct {
	mu       sync.Mutex
	sink     FrameSink
	handlers map[int]func()
	last     []byte
	log      *logger.Logger
}

// NewDisplay with a nil sink runs headless: frames are still rendered and
// persisted but Available reports false.
func NewDisplay(sink FrameSink, log *logger.Logger) *Display {
	if log == nil {
		log = logger.Nop()
	}
	return &Display{sink: sink, handlers: make(map[int]func()), log: log}
}

func (d *Display) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink != nil
}

// Show renders page and, if persistPath is set, writes a PNG copy there.
func (d *Display) Show(page Page, persistPath string) error {
	img := RenderPage(page)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode status frame: %w", err)
	}

	d.mu.Lock()
	d.last = buf.Bytes()
	sink := d.sink
	d.mu.Unlock()

	var errs []error
	if persistPath != "" {
		if err := writeAtomic(persistPath, buf.Bytes()); err != nil {
			errs = append(errs, fmt.Errorf("persist status frame: %w", err))
		}
	}
	if sink != nil {
		if err := sink.Show(img); err != nil {
			errs = append(errs, fmt.Errorf("panel: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LastFrame returns the PNG bytes of the most recent frame, or nil.
func (d *Display) LastFrame() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// SetButtonHandler binds fn to a button. A nil fn clears the binding.
func (d *Display) SetButtonHandler(button int, fn func()) error {
	if button < MinButton || button > MaxButton {
		return fmt.Errorf("%w: %d", ErrInvalidButton, button)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		delete(d.handlers, button)
	} else {
		d.handlers[button] = fn
	}
	d.log.Infow("button_handler_set", "button", button, "bound", fn != nil)
	return nil
}

// Press runs the handler bound to button. It reports whether one was bound.
func (d *Display) Press(button int) bool {
	d.mu.Lock()
	fn := d.handlers[button]
	d.mu.Unlock()

	d.log.Infow("button_pressed", "button", button)
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Close releases the panel.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sink == nil {
		return nil
	}
	err := d.sink.Close()
	d.sink = nil
	return err
}

// RenderPage draws the title on the first row and one line per entry below.
func RenderPage(page Page) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, PanelWidth, PanelHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	dr := &font.Drawer{Dst: img, Src: image.Black, Face: face}
	ascent := face.Metrics().Ascent.Ceil()

	dr.Dot = fixed.P(0, ascent)
	dr.DrawString(page.Title)
	for i, line := range page.Lines {
		dr.Dot = fixed.P(lineIndent, 15+i*lineHeight+ascent)
		dr.DrawString(line)
	}
	return img
}

// StatusTitle is the header line of the status page.
func StatusTitle(at time.Time) string {
	return "Mothpi @ " + at.Format("2006-01-02 15:04:05")
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
