package hardware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mothstation/internal/logger"
)

// ErrCameraUnavailable is returned by Capture when no camera is connected.
var ErrCameraUnavailable = errors.New("camera unavailable")

// CameraDriver talks to the physical camera.
type CameraDriver interface {
	// Open connects to the camera. It fails if none is attached.
	Open(ctx context.Context) error
	// Capture takes a picture and downloads it into dir, returning its path.
	Capture(ctx context.Context, dir string) (string, error)
	Close() error
}

// Frame is a captured picture waiting in the staging directory.
type Frame struct {
	Path       string
	CapturedAt time.Time
}

// Camera wraps a driver with connection tracking and a single
// reconnect-and-retry on capture errors.
type Camera struct {
	mu        sync.Mutex
	driver    CameraDriver
	staging   string
	available bool
	now       func() time.Time
	log       *logger.Logger
}

// NewCamera does not connect; call Reconnect.
func NewCamera(driver CameraDriver, staging string, log *logger.Logger) *Camera {
	if log == nil {
		log = logger.Nop()
	}
	if staging == "" {
		staging = filepath.Join(os.TempDir(), "mothstation")
	}
	return &Camera{driver: driver, staging: staging, now: time.Now, log: log}
}

// Available reports whether the last connection attempt succeeded.
func (c *Camera) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// Reconnect closes any existing connection and opens a new one.
func (c *Camera) Reconnect(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectLocked(ctx)
}

func (c *Camera) reconnectLocked(ctx context.Context) bool {
	if c.available {
		if err := c.driver.Close(); err != nil {
			c.log.Warnw("camera_close_failed", "err", err)
		}
		c.available = false
	}
	if err := c.driver.Open(ctx); err != nil {
		c.log.Errorw("camera_not_found", "err", err)
		return false
	}
	c.available = true
	c.log.Infow("camera_available")
	return true
}

// Capture takes one picture. A driver error triggers one reconnect and one
// more attempt. A failed attempt only costs this round: the camera is marked
// unavailable when the reconnect itself fails, not when the retry does. A
// cancelled ctx is returned as is and never counts as a hardware fault.
func (c *Camera) Capture(ctx context.Context) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.available {
		c.log.Warnw("capture_skipped_no_camera")
		return nil, ErrCameraUnavailable
	}
	if err := os.MkdirAll(c.staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	path, err := c.driver.Capture(ctx, c.staging)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			c.log.Infow("capture_interrupted", "err", cerr)
			return nil, fmt.Errorf("capture interrupted: %w", cerr)
		}
		c.log.Errorw("capture_failed_retrying", "err", err)
		if !c.reconnectLocked(ctx) {
			return nil, ErrCameraUnavailable
		}
		path, err = c.driver.Capture(ctx, c.staging)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				c.log.Infow("capture_interrupted", "err", cerr)
				return nil, fmt.Errorf("capture interrupted: %w", cerr)
			}
			c.log.Errorw("capture_failed", "err", err)
			return nil, fmt.Errorf("capture after reconnect: %w", err)
		}
	}
	c.log.Infow("capture_taken", "path", path)
	return &Frame{Path: path, CapturedAt: c.now()}, nil
}

// Save moves the frame to target, creating the parent directory.
func (c *Camera) Save(f *Frame, target string) error {
	if f == nil {
		return errors.New("save: nil frame")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create picture dir: %w", err)
	}
	if err := os.Rename(f.Path, target); err == nil {
		c.log.Infow("capture_stored", "from", f.Path, "to", target)
		return nil
	}
	// staging and picture folder may live on different filesystems
	if err := copyFile(f.Path, target); err != nil {
		return fmt.Errorf("save %s: %w", target, err)
	}
	_ = os.Remove(f.Path)
	c.log.Infow("capture_stored", "from", f.Path, "to", target)
	return nil
}

// Discard drops a frame that is not going to be kept.
func (c *Camera) Discard(f *Frame) error {
	if f == nil {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard %s: %w", f.Path, err)
	}
	return nil
}

// Close releases the driver.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.available {
		return nil
	}
	c.available = false
	return c.driver.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
