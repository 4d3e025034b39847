package domain

import "time"

type Presence struct {
	UserID   int64      `db:"user_id"`
	Username string     `db:"username"`
	IsOnline bool       `db:"is_online"`
	LastSeen *time.Time `db:"last_seen"`
}
