package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/cwrk-planet/realtime-service/internal/protocol"
)

type recorder struct {
	id  string
	cap int

	mu  sync.Mutex
	got []protocol.Event
}

func newRecorder(id string, capacity int) *recorder {
	return &recorder{id: id, cap: capacity}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Deliver(ev protocol.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cap > 0 && len(r.got) >= r.cap {
		return false
	}
	r.got = append(r.got, ev)
	return true
}

func (r *recorder) events() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Event(nil), r.got...)
}

func TestMemoryBus_PublishReachesGroupOnly(t *testing.T) {
	b := NewMemoryBus()
	a, c, other := newRecorder("a", 0), newRecorder("c", 0), newRecorder("o", 0)
	b.Join("chat_3_7", a)
	b.Join("chat_3_7", c)
	b.Join("chat_1_2", other)

	if err := b.Publish(context.Background(), "chat_3_7", protocol.MessageRead{Username: "alice"}); err != nil {
		t.Fatal(err)
	}

	if len(a.events()) != 1 || len(c.events()) != 1 {
		t.Fatalf("group members must receive: a=%d c=%d", len(a.events()), len(c.events()))
	}
	if len(other.events()) != 0 {
		t.Fatalf("other group must not receive")
	}
}

func TestMemoryBus_PublishExcluding(t *testing.T) {
	b := NewMemoryBus()
	sender, peer := newRecorder("sender", 0), newRecorder("peer", 0)
	b.Join("chat_3_7", sender)
	b.Join("chat_3_7", peer)

	ev := protocol.CallSignal{Data: []byte(`{"type":"call_offer"}`), SenderUsername: "alice", SenderID: 3}
	if err := b.PublishExcluding(context.Background(), "chat_3_7", ev, "sender"); err != nil {
		t.Fatal(err)
	}

	if len(sender.events()) != 0 {
		t.Fatalf("sender must not receive its own call signal")
	}
	if len(peer.events()) != 1 {
		t.Fatalf("peer must receive call signal")
	}
}

func TestMemoryBus_LeaveRemovesEmptyGroup(t *testing.T) {
	b := NewMemoryBus()
	a := newRecorder("a", 0)
	b.Join("user_7", a)
	b.Join("user_7", a) // повторный join идемпотентен
	if b.Members("user_7") != 1 {
		t.Fatalf("expected 1 member, got %d", b.Members("user_7"))
	}

	b.Leave("user_7", "a")
	b.Leave("user_7", "a")
	b.Leave("missing", "a")
	if b.Groups() != 0 {
		t.Fatalf("empty group must be removed, groups=%d", b.Groups())
	}

	_ = b.Publish(context.Background(), "user_7", protocol.MessageDeleted{ID: 1})
	if len(a.events()) != 0 {
		t.Fatalf("left subscriber must not receive")
	}
}

func TestMemoryBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemoryBus()
	slow, fast := newRecorder("slow", 1), newRecorder("fast", 0)
	b.Join("g", slow)
	b.Join("g", fast)

	for i := 0; i < 10; i++ {
		_ = b.Publish(context.Background(), "g", protocol.MessageDeleted{ID: int64(i)})
	}

	if len(slow.events()) != 1 {
		t.Fatalf("slow subscriber keeps only what fits, got %d", len(slow.events()))
	}
	if len(fast.events()) != 10 {
		t.Fatalf("fast subscriber must get everything, got %d", len(fast.events()))
	}
}

func TestMemoryBus_PerGroupOrder(t *testing.T) {
	b := NewMemoryBus()
	subs := make([]*recorder, 5)
	for i := range subs {
		subs[i] = newRecorder(fmt.Sprintf("s%d", i), 0)
		b.Join("chat_1_2", subs[i])
	}

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = b.Publish(context.Background(), "chat_1_2", protocol.MessageDeleted{ID: int64(p*1000 + i)})
			}
		}(p)
	}
	wg.Wait()

	ref := subs[0].events()
	if len(ref) != 200 {
		t.Fatalf("expected 200 events, got %d", len(ref))
	}
	for _, s := range subs[1:] {
		got := s.events()
		if len(got) != len(ref) {
			t.Fatalf("%s: length mismatch", s.id)
		}
		for i := range ref {
			if got[i] != ref[i] {
				t.Fatalf("%s: order differs at %d", s.id, i)
			}
		}
	}
}
