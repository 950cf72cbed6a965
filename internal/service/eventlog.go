package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"mothstation/internal/logger"
	"mothstation/internal/models"
	"mothstation/internal/repository"
)

type EventLogService struct {
	eventRepo repository.EventRepo
	log       *logger.Logger
	now       func() time.Time
}

func NewEventLogService(eventRepo repository.EventRepo, log *logger.Logger) *EventLogService {
	if log == nil {
		log = logger.Nop()
	}
	return &EventLogService{eventRepo: eventRepo, log: log, now: time.Now}
}

var errInvalidTimeRange = errors.New("invalid time range: from must be <= to")

// Record appends a journal entry. Journal failures are logged and never
// reach the caller; the station keeps running without its journal.
func (s *EventLogService) Record(ctx context.Context, typ, description string, meta any) {
	if s.eventRepo == nil {
		return
	}
	ev := models.StationEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  s.now().UTC(),
		Type:        typ,
		Description: description,
		Metadata:    meta,
	}
	if err := s.eventRepo.Append(ctx, ev); err != nil {
		s.log.Errorw("journal_append_failed", "type", typ, "err", err)
	}
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}
	return from, to, strings.TrimSpace(strings.ToUpper(f.Type)), nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.StationEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}
