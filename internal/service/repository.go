package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
)

// RoomRepository хранит комнаты двух пользователей; аргументы user1 < user2.
type RoomRepository interface {
	GetOrCreate(ctx context.Context, user1, user2 int64) (*domain.ChatRoom, error)
	GetByPair(ctx context.Context, user1, user2 int64) (*domain.ChatRoom, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.ChatRoom, error)
	Inbox(ctx context.Context, userID int64, after string, limit int) ([]domain.ChatRoom, string, error)
}

type MessageRepository interface {
	// Append сохраняет сообщение и обновляет last_message_at комнаты атомарно.
	Append(ctx context.Context, roomID, authorID int64, content string, refs domain.MessageRefs) (*domain.ChatMessage, error)
	// MarkRead помечает прочитанными непрочитанные сообщения комнаты, автор которых не readerID.
	MarkRead(ctx context.Context, roomID, readerID int64) (int64, error)
	Edit(ctx context.Context, roomID, id, authorID int64, content string) (bool, error)
	Delete(ctx context.Context, roomID, id, authorID int64) (bool, error)
	History(ctx context.Context, roomID int64, after string, limit int) ([]domain.ChatMessage, string, error)
}

type PresenceRepository interface {
	Set(ctx context.Context, userID int64, online bool, at time.Time) error
	Get(ctx context.Context, userID int64) (*domain.Presence, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Publisher — часть шины, которой пользуются сервисы.
type Publisher interface {
	Publish(ctx context.Context, group string, ev protocol.Event) error
	PublishExcluding(ctx context.Context, group string, ev protocol.Event, excludeID string) error
}
