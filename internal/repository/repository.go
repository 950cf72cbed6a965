package repository

import (
	"context"
	"database/sql"
	"time"

	"mothstation/internal/models"
)

// OperatorRepo stores the accounts allowed to change the station remotely.
type OperatorRepo interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.Operator, error)
	Count(ctx context.Context) (int, error)
}

// StatusRepo keeps the last status snapshot across restarts.
type StatusRepo interface {
	Save(ctx context.Context, s models.StatusSnapshot) error
	// Load reports false when nothing has been saved yet.
	Load(ctx context.Context) (models.StatusSnapshot, bool, error)
}

// EventRepo is the station journal.
type EventRepo interface {
	Append(ctx context.Context, e models.StationEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.StationEvent, error)
}

type Repository struct {
	StatusRepo StatusRepo
	EventRepo  EventRepo
	Operators  OperatorRepo
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StatusRepo: NewStatusSQLite(db),
		EventRepo:  NewEventSQLite(db),
		Operators:  NewOperatorRepository(db),
	}
}
