package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
	"github.com/cwrk-planet/realtime-service/internal/rooms"
)

var tracer = otel.Tracer("github.com/cwrk-planet/realtime-service/internal/service")

// PresenceService — онлайн-статус пользователя. Хранилище — единственный источник истины.
type PresenceService struct {
	presenceRepo PresenceRepository
	roomRepo     RoomRepository
	bus          Publisher

	now func() time.Time
}

func NewPresenceService(presenceRepo PresenceRepository, roomRepo RoomRepository, bus Publisher) *PresenceService {
	return &PresenceService{
		presenceRepo: presenceRepo,
		roomRepo:     roomRepo,
		bus:          bus,
		now:          time.Now,
	}
}

// SetOnline сохраняет флаг и last_seen и возвращает новое состояние.
func (s *PresenceService) SetOnline(ctx context.Context, user domain.User, online bool) (*domain.Presence, error) {
	at := s.now().UTC()
	if err := s.presenceRepo.Set(ctx, user.ID, online, at); err != nil {
		return nil, fmt.Errorf("set presence: %w", err)
	}
	metrics.PresenceTransitions.WithLabelValues(lo.Ternary(online, "online", "offline")).Inc()

	return &domain.Presence{
		UserID:   user.ID,
		Username: user.Username,
		IsOnline: online,
		LastSeen: &at,
	}, nil
}

func (s *PresenceService) Get(ctx context.Context, userID int64) (*domain.Presence, error) {
	return s.presenceRepo.Get(ctx, userID)
}

// BroadcastToUserRooms рассылает user_status во все комнаты пользователя, кроме skip.
func (s *PresenceService) BroadcastToUserRooms(ctx context.Context, p domain.Presence, skip ...string) error {
	ctx, span := tracer.Start(ctx, "presence.broadcast_to_user_rooms")
	defer span.End()

	list, err := s.roomRepo.ListByUser(ctx, p.UserID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("list rooms: %w", err)
	}

	groups := lo.Without(lo.Map(list, func(r domain.ChatRoom, _ int) string {
		return rooms.RoomGroupName(r.User1ID, r.User2ID)
	}), skip...)
	span.SetAttributes(attribute.Int("groups", len(groups)))

	ev := protocol.NewUserStatus(p)
	var errs []error
	for _, g := range groups {
		if err := s.bus.Publish(ctx, g, ev); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", g, err))
		}
	}
	return errors.Join(errs...)
}
