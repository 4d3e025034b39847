package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
	"github.com/cwrk-planet/realtime-service/internal/rooms"
)

const DefaultMaxMessageLength = 4000

type ChatService struct {
	roomRepo    RoomRepository
	messageRepo MessageRepository
	bus         Publisher

	maxLen int
}

func NewChatService(roomRepo RoomRepository, messageRepo MessageRepository, bus Publisher) *ChatService {
	return &ChatService{
		roomRepo:    roomRepo,
		messageRepo: messageRepo,
		bus:         bus,
		maxLen:      DefaultMaxMessageLength,
	}
}

func (s *ChatService) SetMaxMessageLength(n int) {
	if n > 0 {
		s.maxLen = n
	}
}

// CreateOrGetRoom возвращает единственную комнату пары, создавая её при необходимости.
func (s *ChatService) CreateOrGetRoom(ctx context.Context, a, b int64) (*domain.ChatRoom, error) {
	if a == b {
		return nil, domain.ErrSelfTarget
	}
	lo, hi := rooms.CanonicalPair(a, b)
	return s.roomRepo.GetOrCreate(ctx, lo, hi)
}

func (s *ChatService) findRoom(ctx context.Context, a, b int64) (*domain.ChatRoom, error) {
	lo, hi := rooms.CanonicalPair(a, b)
	return s.roomRepo.GetByPair(ctx, lo, hi)
}

func (s *ChatService) normalize(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > s.maxLen {
		return "", domain.ErrMessageTooLong
	}
	return content, nil
}

// Send сохраняет сообщение и рассылает chat_message в группу комнаты.
func (s *ChatService) Send(ctx context.Context, author domain.User, peerID int64, content string, refs domain.MessageRefs) (*domain.ChatMessage, error) {
	content, err := s.normalize(content)
	if err != nil {
		return nil, err
	}

	room, err := s.CreateOrGetRoom(ctx, author.ID, peerID)
	if err != nil {
		return nil, fmt.Errorf("create or get room: %w", err)
	}
	msg, err := s.messageRepo.Append(ctx, room.ID, author.ID, content, refs)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	ev := protocol.NewChatMessage(*msg, author.Username)
	if err := s.bus.Publish(ctx, rooms.RoomGroupName(author.ID, peerID), ev); err != nil {
		return msg, fmt.Errorf("publish chat_message: %w", err)
	}
	return msg, nil
}

// MarkRead помечает сообщения собеседника прочитанными и рассылает квитанцию.
// Квитанция уходит и тогда, когда комнаты ещё нет.
func (s *ChatService) MarkRead(ctx context.Context, reader domain.User, peerID int64) (int64, error) {
	var n int64
	room, err := s.findRoom(ctx, reader.ID, peerID)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
	case err != nil:
		return 0, fmt.Errorf("get room: %w", err)
	default:
		if n, err = s.messageRepo.MarkRead(ctx, room.ID, reader.ID); err != nil {
			return 0, fmt.Errorf("mark read: %w", err)
		}
	}

	if err := s.bus.Publish(ctx, rooms.RoomGroupName(reader.ID, peerID), protocol.MessageRead{Username: reader.Username}); err != nil {
		return n, fmt.Errorf("publish message_read: %w", err)
	}
	return n, nil
}

// EditMessage меняет текст, только если author — автор сообщения в этой комнате.
// false без ошибки означает тихий отказ: ничего не изменено и не разослано.
func (s *ChatService) EditMessage(ctx context.Context, author domain.User, peerID, id int64, content string) (bool, error) {
	content, err := s.normalize(content)
	if err != nil {
		return false, err
	}

	room, err := s.findRoom(ctx, author.ID, peerID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get room: %w", err)
	}

	ok, err := s.messageRepo.Edit(ctx, room.ID, id, author.ID, content)
	if err != nil || !ok {
		return false, err
	}

	ev := protocol.MessageUpdated{ID: id, Content: content}
	if err := s.bus.Publish(ctx, rooms.RoomGroupName(author.ID, peerID), ev); err != nil {
		return true, fmt.Errorf("publish message_updated: %w", err)
	}
	return true, nil
}

func (s *ChatService) DeleteMessage(ctx context.Context, author domain.User, peerID, id int64) (bool, error) {
	room, err := s.findRoom(ctx, author.ID, peerID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get room: %w", err)
	}

	ok, err := s.messageRepo.Delete(ctx, room.ID, id, author.ID)
	if err != nil || !ok {
		return false, err
	}

	if err := s.bus.Publish(ctx, rooms.RoomGroupName(author.ID, peerID), protocol.MessageDeleted{ID: id}); err != nil {
		return true, fmt.Errorf("publish message_deleted: %w", err)
	}
	return true, nil
}

// RelayCallSignal пересылает кадр сигналинга всем в комнате, кроме соединения-отправителя.
func (s *ChatService) RelayCallSignal(ctx context.Context, sender domain.User, peerID int64, senderConnID string, sig protocol.CallFrame) error {
	ev := protocol.CallSignal{
		Data:           sig.Data,
		SenderUsername: sender.Username,
		SenderID:       sender.ID,
	}
	return s.bus.PublishExcluding(ctx, rooms.RoomGroupName(sender.ID, peerID), ev, senderConnID)
}

// Inbox возвращает комнаты пользователя по убыванию последней активности.
func (s *ChatService) Inbox(ctx context.Context, userID int64, after string, limit int) ([]domain.ChatRoom, string, error) {
	return s.roomRepo.Inbox(ctx, userID, after, limit)
}

// History отдаёт страницу сообщений и, как и открытие чата, помечает входящие прочитанными.
func (s *ChatService) History(ctx context.Context, reader, peerID int64, after string, limit int) ([]domain.ChatMessage, string, error) {
	room, err := s.CreateOrGetRoom(ctx, reader, peerID)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.messageRepo.MarkRead(ctx, room.ID, reader); err != nil {
		return nil, "", fmt.Errorf("mark read: %w", err)
	}
	return s.messageRepo.History(ctx, room.ID, after, limit)
}
