package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mothstation/internal/models"
)

type StatusSQLite struct {
	db *sql.DB
}

func NewStatusSQLite(db *sql.DB) *StatusSQLite {
	return &StatusSQLite{db: db}
}

const (
	statusRowID = 1

	upsertStatusSQL = `
		INSERT INTO station_status (id, camera, display, up_since, last_picture, picture_count, free_slots,
			poll_time, addresses, relays, power_save, wind_speed, temperature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			camera=excluded.camera,
			display=excluded.display,
			up_since=excluded.up_since,
			last_picture=excluded.last_picture,
			picture_count=excluded.picture_count,
			free_slots=excluded.free_slots,
			poll_time=excluded.poll_time,
			addresses=excluded.addresses,
			relays=excluded.relays,
			power_save=excluded.power_save,
			wind_speed=excluded.wind_speed,
			temperature=excluded.temperature
	`

	selectStatusSQL = `
		SELECT camera, display, up_since, last_picture, picture_count, free_slots,
			poll_time, addresses, relays, power_save, wind_speed, temperature
		FROM station_status WHERE id=?
	`
)

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func utcNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Save upserts the single status row.
func (r *StatusSQLite) Save(ctx context.Context, s models.StatusSnapshot) error {
	addresses, err := marshalJSON(s.Addresses)
	if err != nil {
		return fmt.Errorf("marshal addresses: %w", err)
	}
	relays, err := marshalJSON(s.Relays)
	if err != nil {
		return fmt.Errorf("marshal relays: %w", err)
	}

	_, err = r.db.ExecContext(ctx, upsertStatusSQL,
		statusRowID,
		s.CameraAvailable,
		s.DisplayAvailable,
		utcNullTime(s.UpSince),
		s.LastPicture,
		s.PictureCount,
		s.FreeSlots,
		utcNullTime(s.PollTime),
		addresses,
		relays,
		s.PowerSave,
		s.WindSpeed,
		s.Temperature,
	)
	if err != nil {
		return fmt.Errorf("save status: %w", err)
	}
	return nil
}

// Load fetches the status row. Button labels are not persisted.
func (r *StatusSQLite) Load(ctx context.Context) (models.StatusSnapshot, bool, error) {
	var (
		s                 models.StatusSnapshot
		upSince, pollTime sql.NullTime
		addresses, relays sql.NullString
	)
	err := r.db.QueryRowContext(ctx, selectStatusSQL, statusRowID).Scan(
		&s.CameraAvailable,
		&s.DisplayAvailable,
		&upSince,
		&s.LastPicture,
		&s.PictureCount,
		&s.FreeSlots,
		&pollTime,
		&addresses,
		&relays,
		&s.PowerSave,
		&s.WindSpeed,
		&s.Temperature,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StatusSnapshot{}, false, nil
		}
		return models.StatusSnapshot{}, false, fmt.Errorf("load status: %w", err)
	}
	if upSince.Valid {
		s.UpSince = upSince.Time.UTC()
	}
	if pollTime.Valid {
		s.PollTime = pollTime.Time.UTC()
	}
	if addresses.Valid && addresses.String != "" {
		if err := json.Unmarshal([]byte(addresses.String), &s.Addresses); err != nil {
			return models.StatusSnapshot{}, false, fmt.Errorf("decode addresses: %w", err)
		}
	}
	if relays.Valid && relays.String != "" {
		if err := json.Unmarshal([]byte(relays.String), &s.Relays); err != nil {
			return models.StatusSnapshot{}, false, fmt.Errorf("decode relays: %w", err)
		}
	}
	return s, true, nil
}
