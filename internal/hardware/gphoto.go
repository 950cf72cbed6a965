package hardware

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoCameraDetected is returned by GPhotoDriver.Open when gphoto2 lists no camera.
var ErrNoCameraDetected = errors.New("gphoto2 detected no camera")

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return out, nil
}

// GPhotoDriver drives a USB camera through the gphoto2 command line tool.
type GPhotoDriver struct {
	Binary string
	run    commandRunner
	model  string
}

func NewGPhotoDriver() *GPhotoDriver {
	return &GPhotoDriver{Binary: "gphoto2", run: runCommand}
}

// Model is the camera model found by the last Open.
func (d *GPhotoDriver) Model() string { return d.model }

func (d *GPhotoDriver) Open(ctx context.Context) error {
	out, err := d.run(ctx, d.Binary, "--auto-detect")
	if err != nil {
		return err
	}
	models := parseAutoDetect(out)
	if len(models) == 0 {
		return ErrNoCameraDetected
	}
	d.model = models[0]
	return nil
}

func (d *GPhotoDriver) Capture(ctx context.Context, dir string) (string, error) {
	target := filepath.Join(dir, fmt.Sprintf("capture-%d.jpg", time.Now().UnixNano()))
	if _, err := d.run(ctx, d.Binary, "--capture-image-and-download", "--force-overwrite", "--filename", target); err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err != nil {
		return "", fmt.Errorf("downloaded picture missing: %w", err)
	}
	return target, nil
}

func (d *GPhotoDriver) Close() error {
	d.model = ""
	return nil
}

// parseAutoDetect reads the model column of `gphoto2 --auto-detect`, which
// prints a header line, a dashed rule and one line per camera.
func parseAutoDetect(out []byte) []string {
	var models []string
	seenRule := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t")
		if !seenRule {
			seenRule = strings.HasPrefix(line, "---")
			continue
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// the port is the last column; the model may contain spaces
		models = append(models, strings.Join(fields[:len(fields)-1], " "))
	}
	return models
}
