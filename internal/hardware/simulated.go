package hardware

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Simulated frame geometry and look.
const (
	simFrameWidth  = 640
	simFrameHeight = 480
	simMoths       = 12
	simJPEGQuality = 80
)

// SimulatedDriver produces synthetic JPEG frames: a lit sheet with a few dark
// moth-sized blobs. It is used when no camera tooling is present.
type SimulatedDriver struct {
	mu   sync.Mutex
	rng  *rand.Rand
	open bool
	seq  int
}

func NewSimulatedDriver() *SimulatedDriver {
	return &SimulatedDriver{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (d *SimulatedDriver) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	return nil
}

func (d *SimulatedDriver) Capture(ctx context.Context, dir string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return "", ErrCameraUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.seq++
	path := filepath.Join(dir, fmt.Sprintf("sim-%06d.jpg", d.seq))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := jpeg.Encode(f, d.frame(), &jpeg.Options{Quality: simJPEGQuality}); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("encode frame: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (d *SimulatedDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

func (d *SimulatedDriver) frame() image.Image {
	img := image.NewGray(image.Rect(0, 0, simFrameWidth, simFrameHeight))
	for y := 0; y < simFrameHeight; y++ {
		// sheet is brightest near the lamp at the top
		base := 235 - uint8(y*40/simFrameHeight)
		for x := 0; x < simFrameWidth; x++ {
			img.SetGray(x, y, color.Gray{Y: base - uint8(d.rng.Intn(8))})
		}
	}
	for i := 0; i < simMoths; i++ {
		cx, cy := d.rng.Intn(simFrameWidth), d.rng.Intn(simFrameHeight)
		r := 6 + d.rng.Intn(14)
		shade := color.Gray{Y: uint8(40 + d.rng.Intn(60))}
		for y := cy - r; y <= cy+r; y++ {
			for x := cx - 2*r; x <= cx+2*r; x++ {
				dx, dy := float64(x-cx)/float64(2*r), float64(y-cy)/float64(r)
				if dx*dx+dy*dy <= 1 {
					img.SetGray(x, y, shade)
				}
			}
		}
	}
	return img
}
