package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type PresenceRepository struct {
	db *pgxpool.Pool
}

func NewPresenceRepository(db *pgxpool.Pool) *PresenceRepository {
	return &PresenceRepository{db: db}
}

func (r *PresenceRepository) Set(ctx context.Context, userID int64, online bool, at time.Time) error {
	if _, err := r.db.Exec(ctx, qPresenceUpsert, userID, online, at); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *PresenceRepository) Get(ctx context.Context, userID int64) (*domain.Presence, error) {
	var p domain.Presence
	err := r.db.QueryRow(ctx, qPresenceGet, userID).Scan(&p.UserID, &p.Username, &p.IsOnline, &p.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
