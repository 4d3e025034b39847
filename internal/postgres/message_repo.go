package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/pagination"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append вставляет сообщение и сдвигает last_message_at комнаты в одной транзакции.
func (r *MessageRepository) Append(ctx context.Context, roomID, authorID int64, content string, refs domain.MessageRefs) (*domain.ChatMessage, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, qRoomTouch, roomID, now)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrRoomNotFound
	}

	m, err := scanMessage(tx.QueryRow(ctx, qMessageInsert, roomID, authorID, content, now, refs.StoryReplyID, refs.SharedReelID))
	if err != nil {
		return nil, mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) MarkRead(ctx context.Context, roomID, readerID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, qMessagesMarkRead, roomID, readerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepository) Edit(ctx context.Context, roomID, id, authorID int64, content string) (bool, error) {
	tag, err := r.db.Exec(ctx, qMessageEdit, id, roomID, authorID, content)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *MessageRepository) Delete(ctx context.Context, roomID, id, authorID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, qMessageDelete, id, roomID, authorID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// History возвращает историю сообщений комнаты с курсорной пагинацией (timestamp,id DESC).
func (r *MessageRepository) History(ctx context.Context, roomID int64, after string, limit int) ([]domain.ChatMessage, string, error) {
	cur, err := pagination.Decode(after)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	limit = pagination.ClampLimit(limit)

	var at, id any
	if cur != nil {
		at, id = nullableTime(cur.At), cur.ID
	}

	rows, err := r.db.Query(ctx, qMessagesHistory, roomID, at, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if n := len(out); n > 0 {
		last := out[n-1]
		next = pagination.Next(n, limit, pagination.Cursor{At: last.Timestamp, ID: last.ID})
	}
	return out, next, nil
}

func scanMessage(row pgx.Row) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := row.Scan(&m.ID, &m.RoomID, &m.AuthorID, &m.Content, &m.Timestamp, &m.IsRead,
		&m.StoryReplyID, &m.SharedReelID, &m.EditedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
