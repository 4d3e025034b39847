package ws

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/realtime-service/internal/bus"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/memstore"
	"github.com/cwrk-planet/realtime-service/internal/security"
	"github.com/cwrk-planet/realtime-service/internal/service"
)

var (
	alice = domain.User{ID: 3, Username: "alice"}
	bob   = domain.User{ID: 7, Username: "bob"}
	carol = domain.User{ID: 9, Username: "carol"}
)

type harness struct {
	t        *testing.T
	ts       *httptest.Server
	store    *memstore.Store
	registry *Registry
	ws       *Server
	chat     *service.ChatService
	notify   *service.NotificationService
	signer   *security.JWTSigner
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	signer := security.NewJWTSigner(key, "auth-service", "cwrk", time.Hour)
	validator := security.NewJWTValidator(&key.PublicKey, "auth-service", "cwrk", time.Second)

	st := memstore.New()
	for _, u := range []domain.User{alice, bob, carol} {
		st.AddUser(u)
	}
	b := bus.NewMemoryBus()
	registry := NewRegistry(b)
	chat := service.NewChatService(st.Rooms(), st.Messages(), b)
	presence := service.NewPresenceService(st.Presence(), st.Rooms(), b)
	auth := service.NewAuthService(validator, st.Users())
	srv := NewServer(registry, b, auth, chat, presence, Options{})

	r := chi.NewRouter()
	r.Get("/ws/chat/{userID}", srv.HandleChat)
	r.Get("/ws/notifications", srv.HandleNotifications)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})

	return &harness{
		t:        t,
		ts:       ts,
		store:    st,
		registry: registry,
		ws:       srv,
		chat:     chat,
		notify:   service.NewNotificationService(b),
		signer:   signer,
	}
}

func (h *harness) token(u domain.User) string {
	tok, err := h.signer.SignAccessToken(u.ID, time.Now())
	if err != nil {
		h.t.Fatal(err)
	}
	return tok
}

func (h *harness) url(path, token string) string {
	u := "ws" + strings.TrimPrefix(h.ts.URL, "http") + path
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (h *harness) dial(path string, u domain.User) *websocket.Conn {
	h.t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(h.url(path, h.token(u)), nil)
	if err != nil {
		h.t.Fatalf("dial %s as %s: %v", path, u.Username, err)
	}
	h.t.Cleanup(func() { _ = c.Close() })
	return c
}

func readEvent(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m map[string]any
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return m
}

func readUntil(t *testing.T, c *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		if m := readEvent(t, c); match(m) {
			return m
		}
	}
	t.Fatalf("expected event not received")
	return nil
}

func ofType(typ string) func(map[string]any) bool {
	return func(m map[string]any) bool { return m["type"] == typ }
}

func statusOf(username string, online bool) func(map[string]any) bool {
	return func(m map[string]any) bool {
		return m["type"] == "user_status" && m["username"] == username && m["is_online"] == online
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandshakeRejections(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name   string
		url    string
		status int
	}{
		{"no token", h.url("/ws/chat/7", ""), http.StatusUnauthorized},
		{"bad token", h.url("/ws/chat/7", "garbage"), http.StatusUnauthorized},
		{"self target", h.url("/ws/chat/3", h.token(alice)), http.StatusForbidden},
		{"unknown peer", h.url("/ws/chat/404", h.token(alice)), http.StatusNotFound},
		{"bad peer id", h.url("/ws/chat/abc", h.token(alice)), http.StatusBadRequest},
		{"notifications no token", h.url("/ws/notifications", ""), http.StatusUnauthorized},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(c.url, nil)
			if err == nil {
				t.Fatalf("handshake must fail")
			}
			if resp == nil || resp.StatusCode != c.status {
				t.Fatalf("expected status %d, got %+v", c.status, resp)
			}
		})
	}
	if h.registry.Len() != 0 {
		t.Fatalf("rejected handshakes must not register connections")
	}
}

func TestChat_MessageFlow(t *testing.T) {
	h := newHarness(t)

	a := h.dial("/ws/chat/7", alice)
	readUntil(t, a, statusOf("alice", true))
	peer := readUntil(t, a, ofType("user_status"))
	if peer["username"] != "bob" || peer["is_online"] != false {
		t.Fatalf("expected bob's current presence, got %v", peer)
	}

	b := h.dial("/ws/chat/3", bob)
	readUntil(t, b, statusOf("alice", true))
	readUntil(t, a, statusOf("bob", true))

	if err := a.WriteJSON(map[string]any{"message": "hi"}); err != nil {
		t.Fatal(err)
	}

	for _, c := range []*websocket.Conn{a, b} {
		m := readUntil(t, c, ofType("chat_message"))
		if m["content"] != "hi" || m["author_username"] != "alice" || m["is_read"] != false {
			t.Fatalf("unexpected chat_message: %v", m)
		}
		if m["author"] != float64(alice.ID) || m["id"] == nil || m["timestamp"] == nil {
			t.Fatalf("chat_message fields missing: %v", m)
		}
	}

	if err := b.WriteJSON(map[string]any{"type": "mark_read"}); err != nil {
		t.Fatal(err)
	}
	receipt := readUntil(t, a, ofType("message_read"))
	if receipt["username"] != "bob" {
		t.Fatalf("unexpected receipt: %v", receipt)
	}
}

func TestChat_EditAndDeleteByAuthorOnly(t *testing.T) {
	h := newHarness(t)
	a := h.dial("/ws/chat/7", alice)
	readUntil(t, a, statusOf("bob", false))
	b := h.dial("/ws/chat/3", bob)
	readUntil(t, b, statusOf("alice", true))

	_ = a.WriteJSON(map[string]any{"message": "orig"})
	msg := readUntil(t, b, ofType("chat_message"))
	id := int64(msg["id"].(float64))

	_ = b.WriteJSON(map[string]any{"type": "edit_message", "id": id, "content": "hijack"})
	_ = a.WriteJSON(map[string]any{"type": "edit_message", "id": id, "content": "fixed"})

	upd := readUntil(t, b, ofType("message_updated"))
	if upd["content"] != "fixed" || upd["id"] != float64(id) {
		t.Fatalf("expected author's edit, got %v", upd)
	}
	waitFor(t, func() bool {
		m, _ := h.store.Messages().Get(id)
		return m.Content == "fixed"
	})

	_ = b.WriteJSON(map[string]any{"type": "delete_message", "id": id})
	_ = a.WriteJSON(map[string]any{"type": "delete_message", "id": id})
	del := readUntil(t, b, ofType("message_deleted"))
	if del["id"] != float64(id) {
		t.Fatalf("unexpected delete event: %v", del)
	}
}

func TestChat_CallSignalNotEchoed(t *testing.T) {
	h := newHarness(t)
	a := h.dial("/ws/chat/7", alice)
	readUntil(t, a, statusOf("bob", false))
	b := h.dial("/ws/chat/3", bob)
	readUntil(t, b, statusOf("alice", true))

	_ = a.WriteJSON(map[string]any{"type": "call_offer", "offer": map[string]any{"sdp": "v=0"}})
	_ = a.WriteJSON(map[string]any{"message": "after"})

	sig := readUntil(t, b, ofType("call_signal"))
	data := sig["data"].(map[string]any)
	if data["type"] != "call_offer" || sig["sender_username"] != "alice" {
		t.Fatalf("unexpected call_signal: %v", sig)
	}

	next := readUntil(t, a, func(m map[string]any) bool { return m["type"] != "user_status" })
	if next["type"] != "chat_message" || next["content"] != "after" {
		t.Fatalf("sender must not receive its own call signal, got %v", next)
	}
}

func TestChat_IgnoresMalformedFrames(t *testing.T) {
	h := newHarness(t)
	a := h.dial("/ws/chat/7", alice)
	readUntil(t, a, statusOf("bob", false))

	_ = a.WriteMessage(websocket.TextMessage, []byte("not json"))
	_ = a.WriteJSON(map[string]any{"type": "typing"})
	_ = a.WriteJSON(map[string]any{"message": "   "})
	_ = a.WriteJSON(map[string]any{"message": "still alive"})

	m := readUntil(t, a, func(m map[string]any) bool { return m["type"] != "user_status" })
	if m["type"] != "chat_message" || m["content"] != "still alive" {
		t.Fatalf("unexpected event: %v", m)
	}
}

func TestChat_DisconnectBroadcastsOffline(t *testing.T) {
	h := newHarness(t)
	a := h.dial("/ws/chat/7", alice)
	readUntil(t, a, statusOf("bob", false))
	b := h.dial("/ws/chat/3", bob)
	readUntil(t, b, statusOf("alice", true))
	readUntil(t, a, statusOf("bob", true))

	_ = b.Close()

	off := readUntil(t, a, statusOf("bob", false))
	if off["last_seen"] == nil {
		t.Fatalf("offline status must carry last_seen: %v", off)
	}
	waitFor(t, func() bool { return h.registry.userConnections(bob.ID) == 0 })

	p, err := h.store.Presence().Get(context.Background(), bob.ID)
	if err != nil || p.IsOnline {
		t.Fatalf("bob must be persisted offline: %+v %v", p, err)
	}
}

func TestChat_CloseWithNotificationSocketOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.chat.CreateOrGetRoom(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	a := h.dial("/ws/chat/7", alice)
	readUntil(t, a, statusOf("bob", false))
	n := h.dial("/ws/notifications", bob)
	readUntil(t, a, statusOf("bob", true))
	b := h.dial("/ws/chat/3", bob)
	readUntil(t, a, statusOf("bob", true))

	_ = b.Close()

	off := readUntil(t, a, statusOf("bob", false))
	if off["last_seen"] == nil {
		t.Fatalf("offline status must carry last_seen: %v", off)
	}
	waitFor(t, func() bool { return h.registry.userConnections(bob.ID) == 1 })

	p, err := h.store.Presence().Get(ctx, bob.ID)
	if err != nil || p.IsOnline {
		t.Fatalf("bob must be persisted offline: %+v %v", p, err)
	}

	// канал уведомлений остаётся рабочим
	note := domain.Notification{ID: 1, SenderUsername: "alice", Type: domain.NotificationLikePost, CreatedAt: time.Now()}
	if err := h.notify.Deliver(ctx, bob.ID, note); err != nil {
		t.Fatal(err)
	}
	readUntil(t, n, ofType("notification_message"))
}

func TestNotifications_PresenceFanOutAndDelivery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.chat.CreateOrGetRoom(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.chat.CreateOrGetRoom(ctx, carol.ID, alice.ID); err != nil {
		t.Fatal(err)
	}

	b := h.dial("/ws/chat/3", bob)
	readUntil(t, b, statusOf("alice", false))
	c := h.dial("/ws/chat/3", carol)
	readUntil(t, c, statusOf("alice", false))

	n := h.dial("/ws/notifications", alice)
	readUntil(t, b, statusOf("alice", true))
	readUntil(t, c, statusOf("alice", true))

	note := domain.Notification{ID: 5, SenderUsername: "bob", Type: domain.NotificationLikePost, CreatedAt: time.Now()}
	if err := h.notify.Deliver(ctx, alice.ID, note); err != nil {
		t.Fatal(err)
	}
	got := readUntil(t, n, ofType("notification_message"))
	data := got["data"].(map[string]any)
	if data["id"] != float64(5) || data["notification_type"] != "like_post" {
		t.Fatalf("unexpected notification: %v", got)
	}

	if err := h.notify.Retract(ctx, alice.ID, 5); err != nil {
		t.Fatal(err)
	}
	tomb := readUntil(t, n, ofType("notification_message"))
	if d := tomb["data"].(map[string]any); d["action"] != "deleted" || d["id"] != float64(5) {
		t.Fatalf("unexpected tombstone: %v", tomb)
	}

	_ = n.Close()
	readUntil(t, b, statusOf("alice", false))
	readUntil(t, c, statusOf("alice", false))
}

func TestServer_ShutdownTearsDownSessions(t *testing.T) {
	h := newHarness(t)
	a := h.dial("/ws/chat/7", alice)
	readUntil(t, a, statusOf("bob", false))
	h.dial("/ws/notifications", bob)
	waitFor(t, func() bool { return h.registry.Len() == 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.ws.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if h.registry.Len() != 0 {
		t.Fatalf("all connections must be deregistered, got %d", h.registry.Len())
	}
	for _, u := range []domain.User{alice, bob} {
		p, _ := h.store.Presence().Get(context.Background(), u.ID)
		if p.IsOnline {
			t.Fatalf("%s must be offline after shutdown", u.Username)
		}
	}
}

func TestServer_RejectsUpgradesAfterShutdown(t *testing.T) {
	h := newHarness(t)
	if err := h.ws.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{"/ws/chat/7", "/ws/notifications"} {
		_, resp, err := websocket.DefaultDialer.Dial(h.url(path, h.token(alice)), nil)
		if err == nil {
			t.Fatalf("%s: upgrade must be refused", path)
		}
		if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %v", path, resp)
		}
	}
	if h.registry.Len() != 0 {
		t.Fatalf("no connection may register after shutdown, got %d", h.registry.Len())
	}
}
