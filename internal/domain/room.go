package domain

import "time"

// ChatRoom — персистентная комната двух пользователей, User1ID < User2ID.
type ChatRoom struct {
	ID            int64      `db:"id"`
	User1ID       int64      `db:"user1_id"`
	User2ID       int64      `db:"user2_id"`
	CreatedAt     time.Time  `db:"created_at"`
	LastMessageAt *time.Time `db:"last_message_at"`
}

func (r ChatRoom) Has(userID int64) bool {
	return r.User1ID == userID || r.User2ID == userID
}

// Peer возвращает собеседника userID в комнате.
func (r ChatRoom) Peer(userID int64) int64 {
	if r.User1ID == userID {
		return r.User2ID
	}
	return r.User1ID
}
