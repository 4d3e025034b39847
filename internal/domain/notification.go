package domain

import "time"

type NotificationType string

const (
	NotificationLikePost      NotificationType = "like_post"
	NotificationLikeReel      NotificationType = "like_reel"
	NotificationFollowRequest NotificationType = "follow_request"
	NotificationFollowAccept  NotificationType = "follow_accept"
	NotificationCommentPost   NotificationType = "comment_post"
	NotificationCommentReel   NotificationType = "comment_reel"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLikePost, NotificationLikeReel, NotificationFollowRequest,
		NotificationFollowAccept, NotificationCommentPost, NotificationCommentReel:
		return true
	}
	return false
}

// Notification — payload, который внешний продюсер отдаёт на доставку пользователю.
type Notification struct {
	ID                   int64            `json:"id"`
	SenderUsername       string           `json:"sender_username"`
	SenderProfilePicture *string          `json:"sender_profile_picture"`
	Type                 NotificationType `json:"notification_type"`
	CreatedAt            time.Time        `json:"created_at"`
	IsRead               bool             `json:"is_read"`
	PostID               *int64           `json:"post_id"`
	ReelID               *int64           `json:"reel_id"`
}

func (n Notification) Validate() error {
	if n.ID <= 0 || n.SenderUsername == "" || !n.Type.Valid() {
		return ErrInvalidInput
	}
	return nil
}
