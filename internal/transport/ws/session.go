package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/logger"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
	"github.com/cwrk-planet/realtime-service/internal/rooms"
)

var tracer = otel.Tracer("github.com/cwrk-planet/realtime-service/internal/transport/ws")

const teardownTimeout = 5 * time.Second

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// session — жизненный цикл одного соединения: Connecting -> Active -> Closed.
// Кадры обрабатываются только в Active и строго по одному.
type session struct {
	srv   *Server
	conn  *wsConn
	kind  Kind
	user  domain.User
	peer  *domain.User // nil для KindNotifications
	group string
	log   *slog.Logger

	state    atomic.Int32
	teardown sync.Once
}

func newSession(srv *Server, conn *wsConn, kind Kind, user domain.User, peer *domain.User) *session {
	s := &session{
		srv:  srv,
		conn: conn,
		kind: kind,
		user: user,
		peer: peer,
	}
	if kind == KindChat {
		s.group = rooms.RoomGroupName(user.ID, peer.ID)
	} else {
		s.group = rooms.UserGroupName(user.ID)
	}
	s.log = logger.L().With(logger.Conn(conn.ID(), user.ID, string(kind)), slog.String("group", s.group))
	return s
}

func (s *session) State() State { return State(s.state.Load()) }

func (s *session) run(ctx context.Context) {
	go s.conn.writeLoop(s.srv.opts.PingEvery, s.srv.opts.WriteTimeout)

	if err := s.activate(ctx); err != nil {
		s.log.Warn("ws activate failed", logger.Err(err))
		s.close(ctx)
		return
	}

	s.conn.readLoop(s.srv.opts.ReadLimit, s.srv.opts.PingEvery, func(data []byte) {
		s.handle(ctx, data)
	})
	s.close(ctx)
}

func (s *session) activate(ctx context.Context) error {
	conn := Connection{UserID: s.user.ID, Kind: s.kind, Endpoint: s.conn}
	if s.peer != nil {
		conn.PeerID = s.peer.ID
	}
	if err := s.srv.registry.Register(conn); err != nil {
		return err
	}
	if err := s.srv.registry.Join(s.conn.ID(), s.group); err != nil {
		return err
	}

	s.announce(ctx, true)
	s.state.Store(int32(StateActive))
	s.log.Debug("ws session active")

	if s.kind == KindChat {
		p, err := s.srv.presence.Get(ctx, s.peer.ID)
		if err != nil {
			s.log.Warn("ws peer presence", logger.Err(err))
			return nil
		}
		s.conn.Deliver(protocol.NewUserStatus(*p))
	}
	return nil
}

// announce сохраняет присутствие и рассылает его: для чата сначала в свою комнату,
// затем во все остальные комнаты пользователя.
func (s *session) announce(ctx context.Context, online bool) {
	ctx, span := tracer.Start(ctx, "ws.presence")
	defer span.End()
	span.SetAttributes(attribute.Bool("online", online), attribute.String("kind", string(s.kind)))

	p, err := s.srv.presence.SetOnline(ctx, s.user, online)
	if err != nil {
		span.RecordError(err)
		s.log.Warn("ws set presence", slog.Bool("online", online), logger.Err(err))
		return
	}

	var skip []string
	if s.kind == KindChat {
		if err := s.srv.bus.Publish(ctx, s.group, protocol.NewUserStatus(*p)); err != nil {
			s.log.Warn("ws publish presence", logger.Err(err))
		}
		skip = append(skip, s.group)
	}
	if err := s.srv.presence.BroadcastToUserRooms(ctx, *p, skip...); err != nil {
		s.log.Warn("ws broadcast presence", logger.Err(err))
	}
}

// close выполняется ровно один раз: выход из групп, offline, закрытие сокета.
// Offline публикуется при закрытии любого соединения, даже если у пользователя остались другие.
func (s *session) close(parent context.Context) {
	s.teardown.Do(func() {
		s.state.Store(int32(StateClosed))

		ctx, cancel := context.WithTimeout(parent, teardownTimeout)
		defer cancel()

		dep, ok := s.srv.registry.Deregister(s.conn.ID())
		if ok {
			s.announce(ctx, false)
		}
		if err := s.conn.Close(); err != nil {
			s.log.Debug("ws close failed", logger.Err(err))
		}
		s.log.Debug("ws session closed", leftGroups(s.user.ID, dep.Groups), slog.Int("remaining", dep.Remaining))
	})
}

// leftGroups раскладывает покинутые группы на собеседников и персональные группы.
func leftGroups(self int64, groups []string) slog.Attr {
	var peers, users []int64
	var other []string
	for _, g := range groups {
		if lo, hi, ok := rooms.ParseRoomGroupName(g); ok {
			if lo == self {
				peers = append(peers, hi)
			} else {
				peers = append(peers, lo)
			}
			continue
		}
		if id, ok := rooms.ParseUserGroupName(g); ok {
			users = append(users, id)
			continue
		}
		other = append(other, g)
	}
	return slog.Group("left",
		slog.Any("peers", peers),
		slog.Any("users", users),
		slog.Any("other", other),
	)
}

func (s *session) handle(ctx context.Context, data []byte) {
	if s.State() != StateActive {
		return
	}
	if s.kind != KindChat {
		// канал уведомлений только на отправку
		return
	}

	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		s.log.Debug("ws drop frame", logger.Err(err))
		return
	}
	metrics.FramesReceived.WithLabelValues(string(frame.Kind())).Inc()

	ctx, span := tracer.Start(ctx, "ws.frame")
	defer span.End()
	span.SetAttributes(attribute.String("frame", string(frame.Kind())))

	if err := s.dispatch(ctx, frame); err != nil {
		span.RecordError(err)
		log := s.log.Warn
		if isRejection(err) {
			log = s.log.Debug
		}
		log("ws frame failed", slog.String("frame", string(frame.Kind())), logger.Err(err))
	}
}

func (s *session) dispatch(ctx context.Context, frame protocol.Frame) error {
	peerID := s.peer.ID

	switch f := frame.(type) {
	case protocol.SendMessage:
		refs := domain.MessageRefs{StoryReplyID: f.StoryReplyID, SharedReelID: f.SharedReelID}
		_, err := s.srv.chat.Send(ctx, s.user, peerID, f.Content, refs)
		return err
	case protocol.MarkRead:
		_, err := s.srv.chat.MarkRead(ctx, s.user, peerID)
		return err
	case protocol.EditMessage:
		_, err := s.srv.chat.EditMessage(ctx, s.user, peerID, f.ID, f.Content)
		return err
	case protocol.DeleteMessage:
		_, err := s.srv.chat.DeleteMessage(ctx, s.user, peerID, f.ID)
		return err
	case protocol.CallFrame:
		return s.srv.chat.RelayCallSignal(ctx, s.user, peerID, s.conn.ID(), f)
	}
	return nil
}

func isRejection(err error) bool {
	return errors.Is(err, domain.ErrEmptyMessage) ||
		errors.Is(err, domain.ErrMessageTooLong) ||
		errors.Is(err, domain.ErrInvalidInput)
}
