package ws

import (
	"errors"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/cwrk-planet/realtime-service/internal/bus"
	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/metrics"
)

var (
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrNotRegistered     = errors.New("connection not registered")
)

type Kind string

const (
	KindChat          Kind = "chat"
	KindNotifications Kind = "notifications"
)

// Endpoint — живое соединение: получатель событий шины, который можно закрыть.
type Endpoint interface {
	bus.Subscriber
	Close() error
}

type Connection struct {
	UserID   int64
	PeerID   int64 // только для KindChat
	Kind     Kind
	Endpoint Endpoint
}

// Departure — итог снятия соединения с регистрации.
type Departure struct {
	Groups    []string // группы, из которых соединение вышло
	Remaining int      // сколько живых соединений осталось у пользователя
}

type entry struct {
	conn   Connection
	groups map[string]struct{}
}

// Registry хранит живые соединения и их членство в группах шины.
type Registry struct {
	bus bus.Bus

	mu      sync.Mutex
	conns   map[string]*entry // conn id -> соединение
	perUser map[int64]int
}

func NewRegistry(b bus.Bus) *Registry {
	return &Registry{
		bus:     b,
		conns:   make(map[string]*entry),
		perUser: make(map[int64]int),
	}
}

// CheckIdentity проверяет, может ли соединение быть принято; вызывается и до апгрейда.
func CheckIdentity(userID, peerID int64, kind Kind) error {
	if userID <= 0 {
		return domain.ErrUnauthenticated
	}
	if kind == KindChat {
		if peerID == userID {
			return domain.ErrSelfTarget
		}
		if peerID <= 0 {
			return domain.ErrInvalidInput
		}
	}
	return nil
}

func (r *Registry) Register(c Connection) error {
	if err := CheckIdentity(c.UserID, c.PeerID, c.Kind); err != nil {
		return err
	}
	id := c.Endpoint.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return ErrAlreadyRegistered
	}
	r.conns[id] = &entry{conn: c, groups: make(map[string]struct{})}
	r.perUser[c.UserID]++
	metrics.WSConnections.WithLabelValues(string(c.Kind)).Inc()
	return nil
}

func (r *Registry) Join(connID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return ErrNotRegistered
	}
	e.groups[group] = struct{}{}
	r.bus.Join(group, e.conn.Endpoint)
	return nil
}

func (r *Registry) Leave(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return
	}
	if _, joined := e.groups[group]; !joined {
		return
	}
	delete(e.groups, group)
	r.bus.Leave(group, connID)
}

func (r *Registry) JoinedGroups(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	groups := lo.Keys(e.groups)
	slices.Sort(groups)
	return groups
}

// Deregister выводит соединение из всех групп и забывает его.
// Повторный вызов ничего не делает и возвращает false.
func (r *Registry) Deregister(connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return Departure{}, false
	}
	groups := lo.Keys(e.groups)
	slices.Sort(groups)
	for _, g := range groups {
		r.bus.Leave(g, connID)
	}
	delete(r.conns, connID)

	uid := e.conn.UserID
	r.perUser[uid]--
	remaining := r.perUser[uid]
	if remaining <= 0 {
		delete(r.perUser, uid)
		remaining = 0
	}
	metrics.WSConnections.WithLabelValues(string(e.conn.Kind)).Dec()

	return Departure{Groups: groups, Remaining: remaining}, true
}

// userConnections — число живых соединений пользователя на этом инстансе.
func (r *Registry) userConnections(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perUser[userID]
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CloseAll закрывает все соединения; их сессии сами снимают регистрацию.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	eps := make([]Endpoint, 0, len(r.conns))
	for _, e := range r.conns {
		eps = append(eps, e.conn.Endpoint)
	}
	r.mu.Unlock()

	for _, ep := range eps {
		_ = ep.Close()
	}
}
