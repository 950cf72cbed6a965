package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mothstation/internal/conditions"
	"mothstation/internal/config"
	"mothstation/internal/hardware"
	"mothstation/internal/logger"
	"mothstation/internal/metrics"
	"mothstation/internal/models"
)

// PictureTimestamp names saved pictures and is shown as the last-picture marker.
const PictureTimestamp = "20060102-150405"

type powerController interface {
	SetRelais(ctx context.Context, state string) error
	PowerSaveMode() bool
}

type CaptureService struct {
	camera   Camera
	power    powerController
	cfg      ConfigStore
	board    *StatusBoard
	journal  EventLog
	metrics  metrics.Collector
	log      *logger.Logger
	diskFree conditions.DiskFreeFunc
	now      func() time.Time
}

func NewCaptureService(camera Camera, power powerController, cfg ConfigStore, board *StatusBoard, journal EventLog, m metrics.Collector, log *logger.Logger) *CaptureService {
	if m == nil {
		m = metrics.Noop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CaptureService{
		camera:   camera,
		power:    power,
		cfg:      cfg,
		board:    board,
		journal:  journal,
		metrics:  m,
		log:      log,
		diskFree: conditions.FreeBytes,
		now:      time.Now,
	}
}

// ReconnectCamera re-opens the camera connection.
func (s *CaptureService) ReconnectCamera(ctx context.Context) bool {
	ok := s.camera.Reconnect(ctx)
	s.log.Infow("camera_reconnect", "available", ok)
	return ok
}

// TakePicture runs one capture cycle. The camera is always asked for a
// frame; the frame is only kept when the disk has room and power-save mode
// is off. A missing or failing camera yields an OutcomeFailed result and the
// capture error.
func (s *CaptureService) TakePicture(ctx context.Context) (CaptureResult, error) {
	cfg := s.cfg.Current()

	if !cfg.LampDuringCapture {
		if err := s.power.SetRelais(ctx, RelayOff); err != nil {
			s.log.Errorw("lamp_off_failed", "err", err)
		}
		defer func() {
			if err := s.power.SetRelais(ctx, RelayOn); err != nil {
				s.log.Errorw("lamp_restore_failed", "err", err)
			}
		}()
	}

	frame, err := s.camera.Capture(ctx)
	if err != nil {
		return s.failed(ctx, err), err
	}

	if valid, reason := s.validCaptureConditions(cfg); !valid {
		if derr := s.camera.Discard(frame); derr != nil {
			s.log.Warnw("capture_discard_failed", "err", derr)
		}
		s.metrics.IncCapture(metrics.CaptureSkipped)
		s.log.Infow("capture_skipped", "reason", reason)
		s.record(ctx, models.EventCaptureSkipped, "picture not saved: "+reason, map[string]any{"reason": reason})
		return CaptureResult{Outcome: OutcomeSkipped, Reason: reason}, nil
	}

	stamp := s.now().Format(PictureTimestamp)
	target := picturePath(cfg, stamp)
	if err := s.camera.Save(frame, target); err != nil {
		_ = s.camera.Discard(frame)
		err = fmt.Errorf("save picture: %w", err)
		return s.failed(ctx, err), err
	}

	s.board.SetLastPicture(stamp)
	s.metrics.IncCapture(metrics.CaptureSaved)
	s.log.Infow("capture_saved", "picture", stamp, "path", target)
	s.record(ctx, models.EventCaptureSaved, "saved "+filepath.Base(target), map[string]any{"path": target})
	return CaptureResult{Outcome: OutcomeSaved, Picture: stamp, Path: target}, nil
}

func (s *CaptureService) failed(ctx context.Context, err error) CaptureResult {
	s.metrics.IncCapture(metrics.CaptureFailed)
	if errors.Is(err, hardware.ErrCameraUnavailable) {
		s.log.Warnw("capture_no_camera")
		return CaptureResult{Outcome: OutcomeFailed, Reason: "camera unavailable"}
	}
	s.log.Errorw("capture_failed", "err", err)
	s.record(ctx, models.EventCaptureFailed, "capture failed", map[string]any{"error": err.Error()})
	return CaptureResult{Outcome: OutcomeFailed, Reason: err.Error()}
}

// validCaptureConditions: disk not full and not in power-save mode. A disk
// that cannot be queried counts as full.
func (s *CaptureService) validCaptureConditions(cfg config.Config) (bool, string) {
	full, err := conditions.IsDiskFull(s.diskFree, cfg.PicturesSaveFolder, conditions.DefaultDiskMargin)
	if err != nil {
		s.log.Errorw("disk_usage_failed", "path", cfg.PicturesSaveFolder, "err", err)
		return false, "disk usage unknown"
	}
	if full {
		return false, "disk full"
	}
	if s.power.PowerSaveMode() {
		return false, "power save mode"
	}
	return true, ""
}

func (s *CaptureService) record(ctx context.Context, typ, desc string, meta any) {
	if s.journal != nil {
		s.journal.Record(ctx, typ, desc, meta)
	}
}

func picturePath(cfg config.Config, stamp string) string {
	ext := strings.TrimPrefix(cfg.PicturesFileFormat, ".")
	if ext == "" {
		ext = "jpg"
	}
	return filepath.Join(cfg.PicturesSaveFolder, stamp+"."+ext)
}
