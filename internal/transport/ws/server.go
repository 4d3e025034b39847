package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/realtime-service/internal/bus"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/logger"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
)

type AuthSvc interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
	User(ctx context.Context, id int64) (*domain.User, error)
}

type ChatSvc interface {
	Send(ctx context.Context, author domain.User, peerID int64, content string, refs domain.MessageRefs) (*domain.ChatMessage, error)
	MarkRead(ctx context.Context, reader domain.User, peerID int64) (int64, error)
	EditMessage(ctx context.Context, author domain.User, peerID, id int64, content string) (bool, error)
	DeleteMessage(ctx context.Context, author domain.User, peerID, id int64) (bool, error)
	RelayCallSignal(ctx context.Context, sender domain.User, peerID int64, senderConnID string, sig protocol.CallFrame) error
}

type PresenceSvc interface {
	SetOnline(ctx context.Context, user domain.User, online bool) (*domain.Presence, error)
	Get(ctx context.Context, userID int64) (*domain.Presence, error)
	BroadcastToUserRooms(ctx context.Context, p domain.Presence, skip ...string) error
}

type Options struct {
	PingEvery    time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	ReadLimit    int64
}

func (o Options) withDefaults() Options {
	if o.PingEvery <= 0 {
		o.PingEvery = 15 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

type Server struct {
	upgrader websocket.Upgrader
	registry *Registry
	bus      bus.Bus
	auth     AuthSvc
	chat     ChatSvc
	presence PresenceSvc
	opts     Options

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

func NewServer(registry *Registry, b bus.Bus, auth AuthSvc, chat ChatSvc, presence PresenceSvc, opts Options) *Server {
	return &Server{
		registry: registry,
		bus:      b,
		auth:     auth,
		chat:     chat,
		presence: presence,
		opts:     opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleChat: GET /ws/chat/{userID}?token=...
func (s *Server) HandleChat(w http.ResponseWriter, r *http.Request) {
	if s.isClosing() {
		s.reject(w, "shutting_down", http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	peerID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || peerID <= 0 {
		s.reject(w, "bad_peer", http.StatusBadRequest, "invalid user id")
		return
	}

	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := CheckIdentity(user.ID, peerID, KindChat); err != nil {
		s.reject(w, "self_target", http.StatusForbidden, err.Error())
		return
	}
	peer, err := s.auth.User(r.Context(), peerID)
	if errors.Is(err, domain.ErrUserNotFound) {
		s.reject(w, "peer_not_found", http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		slog.Error("ws.HandleChat: load peer", "peer", peerID, "err", err)
		s.reject(w, "internal", http.StatusInternalServerError, "internal error")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	sess := newSession(s, newWsConn(conn, s.opts.SendBuffer), KindChat, *user, peer)
	s.serve(r.Context(), sess)
}

// HandleNotifications: GET /ws/notifications?token=...
func (s *Server) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.isClosing() {
		s.reject(w, "shutting_down", http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	user, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := CheckIdentity(user.ID, 0, KindNotifications); err != nil {
		s.reject(w, "unauthenticated", http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	sess := newSession(s, newWsConn(conn, s.opts.SendBuffer), KindNotifications, *user, nil)
	s.serve(r.Context(), sess)
}

func (s *Server) serve(reqCtx context.Context, sess *session) {
	// апгрейд мог завершиться уже после начала Shutdown
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = sess.conn.Close()
		return
	}
	s.sessions.Add(1)
	s.mu.Unlock()
	defer s.sessions.Done()

	// соединение переживает отмену контекста запроса; teardown должен отработать
	ctx := logger.WithContext(context.WithoutCancel(reqCtx), sess.log)
	sess.run(ctx)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	user, err := s.auth.Authenticate(r.Context(), tokenFromRequest(r))
	if err != nil {
		slog.Debug("ws auth failed", "err", err)
		s.reject(w, "unauthenticated", http.StatusUnauthorized, "unauthenticated")
		return nil, false
	}
	return user, true
}

func (s *Server) reject(w http.ResponseWriter, reason string, status int, msg string) {
	metrics.WSRejected.WithLabelValues(reason).Inc()
	http.Error(w, msg, status)
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown перестаёт принимать апгрейды, закрывает все соединения и ждёт завершения их сессий.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tokenFromRequest: ?token=, ?access_token= или Authorization: Bearer.
func tokenFromRequest(r *http.Request) string {
	q := r.URL.Query()
	if t := strings.TrimSpace(q.Get("token")); t != "" {
		return t
	}
	if t := strings.TrimSpace(q.Get("access_token")); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	return ""
}
