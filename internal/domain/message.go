package domain

import "time"

type ChatMessage struct {
	ID           int64      `db:"id"`
	RoomID       int64      `db:"room_id"`
	AuthorID     int64      `db:"author_id"`
	Content      string     `db:"content"`
	Timestamp    time.Time  `db:"timestamp"`
	IsRead       bool       `db:"is_read"`
	StoryReplyID *int64     `db:"story_reply_id"`
	SharedReelID *int64     `db:"shared_reel_id"`
	EditedAt     *time.Time `db:"edited_at"`
}

// MessageRefs — необязательные ссылки сообщения на сторис/рилс.
type MessageRefs struct {
	StoryReplyID *int64
	SharedReelID *int64
}
