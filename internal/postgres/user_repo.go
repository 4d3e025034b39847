package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// UserRepository читает таблицу users, которой владеет auth-service.
type UserRepository struct {
	q querier
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{q: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.q.QueryRow(ctx, qUserByID, id).Scan(&u.ID, &u.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
