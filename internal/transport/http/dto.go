package http

import (
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SendMessageRequest struct {
	Content    string `json:"content"`
	StoryID    *int64 `json:"story_id,omitempty"`
	SharedReel *int64 `json:"shared_reel,omitempty"`
}

type MessageItem struct {
	ID         int64      `json:"id"`
	Content    string     `json:"content"`
	Author     int64      `json:"author"`
	Timestamp  time.Time  `json:"timestamp"`
	IsRead     bool       `json:"is_read"`
	StoryReply *int64     `json:"story_reply,omitempty"`
	SharedReel *int64     `json:"shared_reel,omitempty"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
}

type MessagesResponse struct {
	Items      []MessageItem `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type PeerItem struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

type ChatItem struct {
	RoomID        int64      `json:"room_id"`
	Peer          PeerItem   `json:"peer"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

type ChatsResponse struct {
	Items      []ChatItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type MarkReadResponse struct {
	Marked int64 `json:"marked"`
}

type PresenceItem struct {
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen"`
}

func toMessageItem(m domain.ChatMessage) MessageItem {
	return MessageItem{
		ID:         m.ID,
		Content:    m.Content,
		Author:     m.AuthorID,
		Timestamp:  m.Timestamp,
		IsRead:     m.IsRead,
		StoryReply: m.StoryReplyID,
		SharedReel: m.SharedReelID,
		EditedAt:   m.EditedAt,
	}
}
