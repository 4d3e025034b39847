package service

import (
	"context"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
	"github.com/cwrk-planet/realtime-service/internal/rooms"
)

// NotificationService доставляет уведомления в персональную группу пользователя.
// Доставка best-effort: если пользователь не подключён, уведомление никуда не уходит.
type NotificationService struct {
	bus Publisher
}

func NewNotificationService(bus Publisher) *NotificationService {
	return &NotificationService{bus: bus}
}

func (s *NotificationService) Deliver(ctx context.Context, userID int64, n domain.Notification) error {
	if userID <= 0 {
		return domain.ErrInvalidInput
	}
	if err := n.Validate(); err != nil {
		return err
	}
	ev, err := protocol.NotificationDelivered(n)
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, rooms.UserGroupName(userID), ev)
}

// Retract отправляет tombstone {id, action: "deleted"}.
func (s *NotificationService) Retract(ctx context.Context, userID, notificationID int64) error {
	if userID <= 0 || notificationID <= 0 {
		return domain.ErrInvalidInput
	}
	return s.bus.Publish(ctx, rooms.UserGroupName(userID), protocol.NotificationDeleted(notificationID))
}
