package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/pagination"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetOrCreate безопасен при гонке: уникальный индекс (user1_id, user2_id) и ON CONFLICT
// гарантируют одну комнату на пару.
func (r *RoomRepository) GetOrCreate(ctx context.Context, user1, user2 int64) (*domain.ChatRoom, error) {
	room, err := scanRoom(r.db.QueryRow(ctx, qRoomUpsert, user1, user2))
	if err != nil {
		return nil, mapPgError(err)
	}
	return room, nil
}

func (r *RoomRepository) GetByPair(ctx context.Context, user1, user2 int64) (*domain.ChatRoom, error) {
	room, err := scanRoom(r.db.QueryRow(ctx, qRoomByPair, user1, user2))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *RoomRepository) ListByUser(ctx context.Context, userID int64) ([]domain.ChatRoom, error) {
	rows, err := r.db.Query(ctx, qRoomsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

// Inbox — комнаты пользователя по убыванию активности с курсорной пагинацией.
func (r *RoomRepository) Inbox(ctx context.Context, userID int64, after string, limit int) ([]domain.ChatRoom, string, error) {
	cur, err := pagination.Decode(after)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.ClampLimit(limit)

	var at, id any
	if cur != nil {
		at, id = cur.At, cur.ID
	}

	rows, err := r.db.Query(ctx, qRoomsInbox, userID, at, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	out, err := collectRooms(rows)
	if err != nil {
		return nil, "", err
	}

	var next string
	if n := len(out); n > 0 {
		last := out[n-1]
		activity := last.CreatedAt
		if last.LastMessageAt != nil {
			activity = *last.LastMessageAt
		}
		next = pagination.Next(n, limit, pagination.Cursor{At: activity, ID: last.ID})
	}
	return out, next, nil
}

func scanRoom(row pgx.Row) (*domain.ChatRoom, error) {
	var rm domain.ChatRoom
	if err := row.Scan(&rm.ID, &rm.User1ID, &rm.User2ID, &rm.CreatedAt, &rm.LastMessageAt); err != nil {
		return nil, err
	}
	return &rm, nil
}

func collectRooms(rows pgx.Rows) ([]domain.ChatRoom, error) {
	var out []domain.ChatRoom
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}
