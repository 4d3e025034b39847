// Package memstore — хранилище в памяти процесса для локальной разработки и тестов.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/pagination"
)

// Store реализует репозитории комнат, сообщений, присутствия и пользователей.
type Store struct {
	mu sync.Mutex

	users    map[int64]domain.User
	rooms    map[[2]int64]*domain.ChatRoom
	messages map[int64]*domain.ChatMessage // id -> сообщение
	presence map[int64]domain.Presence

	lastRoomID int64
	lastMsgID  int64
	now        func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[int64]domain.User),
		rooms:    make(map[[2]int64]*domain.ChatRoom),
		messages: make(map[int64]*domain.ChatMessage),
		presence: make(map[int64]domain.Presence),
		now:      time.Now,
	}
}

// AddUser регистрирует пользователя; users в этом сервисе только читаются.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) Users() *UserRepository { return &UserRepository{s} }
func (s *Store) Rooms() *RoomRepository { return &RoomRepository{s} }
func (s *Store) Messages() *MessageRepository { return &MessageRepository{s} }
func (s *Store) Presence() *PresenceRepository { return &PresenceRepository{s} }

type UserRepository struct{ s *Store }

func (r *UserRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

type RoomRepository struct{ s *Store }

func (r *RoomRepository) GetOrCreate(_ context.Context, user1, user2 int64) (*domain.ChatRoom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := [2]int64{user1, user2}
	if room, ok := r.s.rooms[key]; ok {
		cp := *room
		return &cp, nil
	}
	r.s.lastRoomID++
	room := &domain.ChatRoom{ID: r.s.lastRoomID, User1ID: user1, User2ID: user2, CreatedAt: r.s.now().UTC()}
	r.s.rooms[key] = room
	cp := *room
	return &cp, nil
}

func (r *RoomRepository) GetByPair(_ context.Context, user1, user2 int64) (*domain.ChatRoom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[[2]int64{user1, user2}]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *RoomRepository) ListByUser(_ context.Context, userID int64) ([]domain.ChatRoom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.roomsOf(userID), nil
}

func (r *RoomRepository) Inbox(_ context.Context, userID int64, after string, limit int) ([]domain.ChatRoom, string, error) {
	cur, err := pagination.Decode(after)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.ClampLimit(limit)

	r.s.mu.Lock()
	list := r.s.roomsOf(userID)
	r.s.mu.Unlock()

	slices.SortFunc(list, func(a, b domain.ChatRoom) int {
		if c := activityAt(b).Compare(activityAt(a)); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	out := make([]domain.ChatRoom, 0, limit)
	for _, room := range list {
		if cur != nil {
			at := activityAt(room)
			if at.After(cur.At) || (at.Equal(cur.At) && room.ID >= cur.ID) {
				continue
			}
		}
		out = append(out, room)
		if len(out) == limit {
			break
		}
	}

	var next string
	if n := len(out); n > 0 {
		last := out[n-1]
		next = pagination.Next(n, limit, pagination.Cursor{At: activityAt(last), ID: last.ID})
	}
	return out, next, nil
}

func activityAt(r domain.ChatRoom) time.Time {
	if r.LastMessageAt != nil {
		return *r.LastMessageAt
	}
	return r.CreatedAt
}

func (s *Store) roomsOf(userID int64) []domain.ChatRoom {
	var out []domain.ChatRoom
	for _, room := range s.rooms {
		if room.Has(userID) {
			out = append(out, *room)
		}
	}
	slices.SortFunc(out, func(a, b domain.ChatRoom) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Store) roomByID(id int64) *domain.ChatRoom {
	for _, room := range s.rooms {
		if room.ID == id {
			return room
		}
	}
	return nil
}

type MessageRepository struct{ s *Store }

func (r *MessageRepository) Append(_ context.Context, roomID, authorID int64, content string, refs domain.MessageRefs) (*domain.ChatMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room := r.s.roomByID(roomID)
	if room == nil {
		return nil, domain.ErrRoomNotFound
	}
	now := r.s.now().UTC()
	room.LastMessageAt = &now

	r.s.lastMsgID++
	m := &domain.ChatMessage{
		ID:           r.s.lastMsgID,
		RoomID:       roomID,
		AuthorID:     authorID,
		Content:      content,
		Timestamp:    now,
		StoryReplyID: refs.StoryReplyID,
		SharedReelID: refs.SharedReelID,
	}
	r.s.messages[m.ID] = m
	cp := *m
	return &cp, nil
}

func (r *MessageRepository) MarkRead(_ context.Context, roomID, readerID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, m := range r.s.messages {
		if m.RoomID == roomID && m.AuthorID != readerID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *MessageRepository) Edit(_ context.Context, roomID, id, authorID int64, content string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok || m.RoomID != roomID || m.AuthorID != authorID {
		return false, nil
	}
	now := r.s.now().UTC()
	m.Content = content
	m.EditedAt = &now
	return true, nil
}

func (r *MessageRepository) Delete(_ context.Context, roomID, id, authorID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[id]
	if !ok || m.RoomID != roomID || m.AuthorID != authorID {
		return false, nil
	}
	delete(r.s.messages, id)
	return true, nil
}

// History отдаёт сообщения по убыванию (timestamp, id).
func (r *MessageRepository) History(_ context.Context, roomID int64, after string, limit int) ([]domain.ChatMessage, string, error) {
	cur, err := pagination.Decode(after)
	if err != nil {
		return nil, "", err
	}
	limit = pagination.ClampLimit(limit)

	r.s.mu.Lock()
	var list []domain.ChatMessage
	for _, m := range r.s.messages {
		if m.RoomID == roomID {
			list = append(list, *m)
		}
	}
	r.s.mu.Unlock()

	slices.SortFunc(list, func(a, b domain.ChatMessage) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	out := make([]domain.ChatMessage, 0, limit)
	for _, m := range list {
		if cur != nil && (m.Timestamp.After(cur.At) || (m.Timestamp.Equal(cur.At) && m.ID >= cur.ID)) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}

	var next string
	if n := len(out); n > 0 {
		last := out[n-1]
		next = pagination.Next(n, limit, pagination.Cursor{At: last.Timestamp, ID: last.ID})
	}
	return out, next, nil
}

// Get возвращает сообщение по id; используется в тестах.
func (r *MessageRepository) Get(id int64) (domain.ChatMessage, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return domain.ChatMessage{}, false
	}
	return *m, true
}

type PresenceRepository struct{ s *Store }

func (r *PresenceRepository) Set(_ context.Context, userID int64, online bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	r.s.presence[userID] = domain.Presence{UserID: userID, IsOnline: online, LastSeen: &at}
	return nil
}

func (r *PresenceRepository) Get(_ context.Context, userID int64) (*domain.Presence, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	p := r.s.presence[userID]
	p.UserID = userID
	p.Username = u.Username
	return &p, nil
}
