package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

var ErrUnknownEvent = errors.New("unknown event type")

type EventType string

const (
	EventChatMessage    EventType = "chat_message"
	EventUserStatus     EventType = "user_status"
	EventMessageRead    EventType = "message_read"
	EventMessageUpdated EventType = "message_updated"
	EventMessageDeleted EventType = "message_deleted"
	EventCallSignal     EventType = "call_signal"
	EventNotification   EventType = "notification_message"
)

// Event — исходящее событие, рассылаемое через шину. Набор реализаций закрыт.
type Event interface {
	Type() EventType
	event()
}

type ChatMessage struct {
	ID             int64     `json:"id"`
	Content        string    `json:"content"`
	Author         int64     `json:"author"`
	AuthorUsername string    `json:"author_username"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"is_read"`
	StoryReply     *int64    `json:"story_reply,omitempty"`
	SharedReel     *int64    `json:"shared_reel,omitempty"`
}

type UserStatus struct {
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

// MessageRead — квитанция о прочтении; id сообщений намеренно не передаются.
type MessageRead struct {
	Username string `json:"username"`
}

type MessageUpdated struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

type MessageDeleted struct {
	ID int64 `json:"id"`
}

type CallSignal struct {
	Data           json.RawMessage `json:"data"`
	SenderUsername string          `json:"sender_username"`
	SenderID       int64           `json:"sender_id"`
}

type Notification struct {
	Data json.RawMessage `json:"data"`
}

func (ChatMessage) Type() EventType    { return EventChatMessage }
func (UserStatus) Type() EventType     { return EventUserStatus }
func (MessageRead) Type() EventType    { return EventMessageRead }
func (MessageUpdated) Type() EventType { return EventMessageUpdated }
func (MessageDeleted) Type() EventType { return EventMessageDeleted }
func (CallSignal) Type() EventType     { return EventCallSignal }
func (Notification) Type() EventType   { return EventNotification }

func (ChatMessage) event()    {}
func (UserStatus) event()     {}
func (MessageRead) event()    {}
func (MessageUpdated) event() {}
func (MessageDeleted) event() {}
func (CallSignal) event()     {}
func (Notification) event()   {}

func (e ChatMessage) MarshalJSON() ([]byte, error) {
	type body ChatMessage
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{EventChatMessage, body(e)})
}

func (e UserStatus) MarshalJSON() ([]byte, error) {
	type body UserStatus
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{EventUserStatus, body(e)})
}

func (e MessageRead) MarshalJSON() ([]byte, error) {
	type body MessageRead
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{EventMessageRead, body(e)})
}

func (e MessageUpdated) MarshalJSON() ([]byte, error) {
	type body MessageUpdated
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{EventMessageUpdated, body(e)})
}

func (e MessageDeleted) MarshalJSON() ([]byte, error) {
	type body MessageDeleted
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{EventMessageDeleted, body(e)})
}

func (e CallSignal) MarshalJSON() ([]byte, error) {
	type body CallSignal
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{EventCallSignal, body(e)})
}

func (e Notification) MarshalJSON() ([]byte, error) {
	type body Notification
	return json.Marshal(struct {
		Type EventType `json:"type"`
		body
	}{EventNotification, body(e)})
}

func NewChatMessage(m domain.ChatMessage, authorUsername string) ChatMessage {
	return ChatMessage{
		ID:             m.ID,
		Content:        m.Content,
		Author:         m.AuthorID,
		AuthorUsername: authorUsername,
		Timestamp:      m.Timestamp,
		IsRead:         m.IsRead,
		StoryReply:     m.StoryReplyID,
		SharedReel:     m.SharedReelID,
	}
}

func NewUserStatus(p domain.Presence) UserStatus {
	return UserStatus{
		UserID:   p.UserID,
		Username: p.Username,
		IsOnline: p.IsOnline,
		LastSeen: p.LastSeen,
	}
}

func NotificationDelivered(n domain.Notification) (Notification, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return Notification{}, fmt.Errorf("encode notification: %w", err)
	}
	return Notification{Data: data}, nil
}

// NotificationDeleted — tombstone: {"id": <id>, "action": "deleted"}.
func NotificationDeleted(id int64) Notification {
	data, _ := json.Marshal(struct {
		ID     int64  `json:"id"`
		Action string `json:"action"`
	}{id, "deleted"})
	return Notification{Data: data}
}

func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent восстанавливает событие по полю type.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch head.Type {
	case EventChatMessage:
		return decodeAs[ChatMessage](data)
	case EventUserStatus:
		return decodeAs[UserStatus](data)
	case EventMessageRead:
		return decodeAs[MessageRead](data)
	case EventMessageUpdated:
		return decodeAs[MessageUpdated](data)
	case EventMessageDeleted:
		return decodeAs[MessageDeleted](data)
	case EventCallSignal:
		return decodeAs[CallSignal](data)
	case EventNotification:
		return decodeAs[Notification](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, head.Type)
}

func decodeAs[T Event](data []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Type(), err)
	}
	return ev, nil
}
