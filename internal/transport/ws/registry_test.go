package ws

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/cwrk-planet/realtime-service/internal/bus"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/protocol"
)

type fakeEndpoint struct {
	id string

	mu     sync.Mutex
	got    []protocol.Event
	closed bool
}

func (f *fakeEndpoint) ID() string { return f.id }

func (f *fakeEndpoint) Deliver(ev protocol.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, ev)
	return true
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEndpoint) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry(bus.NewMemoryBus())

	cases := []struct {
		conn Connection
		want error
	}{
		{Connection{UserID: 0, Kind: KindNotifications, Endpoint: &fakeEndpoint{id: "a"}}, domain.ErrUnauthenticated},
		{Connection{UserID: 3, PeerID: 3, Kind: KindChat, Endpoint: &fakeEndpoint{id: "b"}}, domain.ErrSelfTarget},
		{Connection{UserID: 3, PeerID: 0, Kind: KindChat, Endpoint: &fakeEndpoint{id: "c"}}, domain.ErrInvalidInput},
	}
	for _, c := range cases {
		if err := r.Register(c.conn); !errors.Is(err, c.want) {
			t.Fatalf("expected %v, got %v", c.want, err)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("rejected connections must not be registered")
	}

	ok := Connection{UserID: 3, PeerID: 7, Kind: KindChat, Endpoint: &fakeEndpoint{id: "d"}}
	if err := r.Register(ok); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(ok); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegistry_JoinAndDeregister(t *testing.T) {
	b := bus.NewMemoryBus()
	r := NewRegistry(b)
	ep := &fakeEndpoint{id: "conn-1"}

	if err := r.Join("conn-1", "chat_3_7"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("join before register: %v", err)
	}
	if err := r.Register(Connection{UserID: 3, PeerID: 7, Kind: KindChat, Endpoint: ep}); err != nil {
		t.Fatal(err)
	}
	_ = r.Join("conn-1", "chat_3_7")
	_ = r.Join("conn-1", "user_3")

	if got := r.JoinedGroups("conn-1"); !reflect.DeepEqual(got, []string{"chat_3_7", "user_3"}) {
		t.Fatalf("joined groups: %v", got)
	}

	_ = b.Publish(context.Background(), "chat_3_7", protocol.MessageRead{Username: "bob"})
	if ep.count() != 1 {
		t.Fatalf("joined endpoint must receive")
	}

	dep, ok := r.Deregister("conn-1")
	if !ok || dep.Remaining != 0 || len(dep.Groups) != 2 {
		t.Fatalf("unexpected departure: %+v %v", dep, ok)
	}
	if b.Groups() != 0 {
		t.Fatalf("deregister must leave every group")
	}

	if _, ok := r.Deregister("conn-1"); ok {
		t.Fatalf("second deregister must be a no-op")
	}

	_ = b.Publish(context.Background(), "chat_3_7", protocol.MessageRead{Username: "bob"})
	if ep.count() != 1 {
		t.Fatalf("deregistered endpoint must not receive")
	}
}

func TestRegistry_CountsUserConnections(t *testing.T) {
	r := NewRegistry(bus.NewMemoryBus())
	_ = r.Register(Connection{UserID: 3, PeerID: 7, Kind: KindChat, Endpoint: &fakeEndpoint{id: "chat"}})
	_ = r.Register(Connection{UserID: 3, Kind: KindNotifications, Endpoint: &fakeEndpoint{id: "notif"}})

	if n := r.userConnections(3); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	if dep, _ := r.Deregister("chat"); dep.Remaining != 1 {
		t.Fatalf("expected 1 remaining, got %d", dep.Remaining)
	}
	if dep, _ := r.Deregister("notif"); dep.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", dep.Remaining)
	}
}

func TestRegistry_LeaveAndCloseAll(t *testing.T) {
	r := NewRegistry(bus.NewMemoryBus())
	a, b := &fakeEndpoint{id: "a"}, &fakeEndpoint{id: "b"}
	_ = r.Register(Connection{UserID: 3, Kind: KindNotifications, Endpoint: a})
	_ = r.Register(Connection{UserID: 7, Kind: KindNotifications, Endpoint: b})
	_ = r.Join("a", "user_3")

	r.Leave("a", "user_3")
	r.Leave("a", "user_3")
	if len(r.JoinedGroups("a")) != 0 {
		t.Fatalf("leave must drop the group")
	}

	r.CloseAll()
	if !a.closed || !b.closed {
		t.Fatalf("CloseAll must close every endpoint")
	}
}

func TestLeftGroups(t *testing.T) {
	a := leftGroups(3, []string{"chat_3_7", "chat_1_3", "user_3", "lobby"})

	got := map[string]any{}
	for _, attr := range a.Value.Group() {
		got[attr.Key] = attr.Value.Any()
	}
	if !reflect.DeepEqual(got["peers"], []int64{7, 1}) {
		t.Fatalf("peers: %v", got["peers"])
	}
	if !reflect.DeepEqual(got["users"], []int64{3}) {
		t.Fatalf("users: %v", got["users"])
	}
	if !reflect.DeepEqual(got["other"], []string{"lobby"}) {
		t.Fatalf("other: %v", got["other"])
	}
}
