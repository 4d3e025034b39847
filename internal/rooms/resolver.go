// Package rooms вычисляет имена групп шины для чатов и пользователей.
package rooms

import (
	"strconv"
	"strings"
)

const (
	roomPrefix = "chat_"
	userPrefix = "user_"
)

// CanonicalPair упорядочивает пару id по числовому значению.
func CanonicalPair(a, b int64) (lower, upper int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

// RoomGroupName возвращает chat_{min}_{max}; результат не зависит от порядка аргументов.
func RoomGroupName(a, b int64) string {
	lo, hi := CanonicalPair(a, b)
	return roomPrefix + strconv.FormatInt(lo, 10) + "_" + strconv.FormatInt(hi, 10)
}

// UserGroupName возвращает персональную группу пользователя user_{id}.
func UserGroupName(id int64) string {
	return userPrefix + strconv.FormatInt(id, 10)
}

// ParseRoomGroupName разбирает имя, построенное RoomGroupName.
func ParseRoomGroupName(name string) (lower, upper int64, ok bool) {
	rest, found := strings.CutPrefix(name, roomPrefix)
	if !found {
		return 0, 0, false
	}
	l, u, found := strings.Cut(rest, "_")
	if !found {
		return 0, 0, false
	}
	lower, err := strconv.ParseInt(l, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	upper, err = strconv.ParseInt(u, 10, 64)
	if err != nil || lower > upper {
		return 0, 0, false
	}
	return lower, upper, true
}

func ParseUserGroupName(name string) (int64, bool) {
	rest, found := strings.CutPrefix(name, userPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
