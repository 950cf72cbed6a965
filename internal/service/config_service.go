package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"mothstation/internal/logger"
	"mothstation/internal/models"
)

// ErrConfigRejected wraps update errors caused by the submitted values.
var ErrConfigRejected = errors.New("configuration update rejected")

// ConfigService applies remote configuration edits and writes them back.
type ConfigService struct {
	store   ConfigStore
	journal EventLog
	log     *logger.Logger
}

func NewConfigService(store ConfigStore, journal EventLog, log *logger.Logger) *ConfigService {
	if log == nil {
		log = logger.Nop()
	}
	return &ConfigService{store: store, journal: journal, log: log}
}

func (s *ConfigService) Settings() map[string]any { return s.store.Settings() }

// Update validates and stores values, then saves the file. accepted is false
// when some values were replaced by defaults.
func (s *ConfigService) Update(ctx context.Context, values map[string]any) (bool, error) {
	accepted, err := s.store.UpdateFromMap(values)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrConfigRejected, err)
	}
	if err := s.store.Save(); err != nil {
		s.log.Errorw("config_save_failed", "err", err)
		return accepted, fmt.Errorf("save configuration: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.log.Infow("config_updated", "keys", keys, "accepted", accepted)
	if s.journal != nil {
		s.journal.Record(ctx, models.EventConfig, "configuration updated", map[string]any{
			"keys":     keys,
			"accepted": accepted,
		})
	}
	return accepted, nil
}
