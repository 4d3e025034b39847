package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/internal/logger"
	"github.com/cwrk-planet/realtime-service/internal/pagination"
	"github.com/cwrk-planet/realtime-service/internal/service"
	httpmw "github.com/cwrk-planet/realtime-service/internal/transport/http/middleware"
)

type Handler struct {
	chatSvc     *service.ChatService
	presenceSvc *service.PresenceService
	notifySvc   *service.NotificationService
	authSvc     *service.AuthService
}

func NewHandler(chat *service.ChatService, presence *service.PresenceService, notify *service.NotificationService, auth *service.AuthService) *Handler {
	return &Handler{
		chatSvc:     chat,
		presenceSvc: presence,
		notifySvc:   notify,
		authSvc:     auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr переводит доменную ошибку в статус; неизвестные ошибки логируются как 500.
func writeErr(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(ctx).Error(op, slog.Any("err", err))
		writeJSON(w, status, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSelfTarget):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, pagination.ErrInvalidCursor):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidInput
	}
	return id, nil
}

func pageParams(r *http.Request) (string, int) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	return r.URL.Query().Get("cursor"), pagination.ClampLimit(limit)
}

// peer разбирает {userID} и проверяет, что собеседник существует и это не сам пользователь.
func (h *Handler) peer(r *http.Request) (domain.User, *domain.User, error) {
	me, ok := httpmw.UserFromCtx(r.Context())
	if !ok {
		return domain.User{}, nil, domain.ErrUnauthenticated
	}
	peerID, err := pathID(r, "userID")
	if err != nil {
		return me, nil, err
	}
	if peerID == me.ID {
		return me, nil, domain.ErrSelfTarget
	}
	peer, err := h.authSvc.User(r.Context(), peerID)
	if err != nil {
		return me, nil, err
	}
	return me, peer, nil
}

// GET /chats?limit=&cursor=
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	me, ok := httpmw.UserFromCtx(r.Context())
	if !ok {
		writeErr(r.Context(), w, "handler.ListChats", domain.ErrUnauthenticated)
		return
	}
	cursor, limit := pageParams(r)

	rooms, next, err := h.chatSvc.Inbox(r.Context(), me.ID, cursor, limit)
	if err != nil {
		writeErr(r.Context(), w, "handler.ListChats", err)
		return
	}

	resp := ChatsResponse{Items: make([]ChatItem, 0, len(rooms)), NextCursor: next}
	for _, rm := range rooms {
		item := ChatItem{
			RoomID:        rm.ID,
			Peer:          PeerItem{ID: rm.Peer(me.ID)},
			CreatedAt:     rm.CreatedAt,
			LastMessageAt: rm.LastMessageAt,
		}
		// имя собеседника best-effort: пользователь мог быть удалён
		if u, err := h.authSvc.User(r.Context(), item.Peer.ID); err == nil {
			item.Peer.Username = u.Username
		}
		resp.Items = append(resp.Items, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /chats/{userID}/messages?limit=&cursor=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	me, peer, err := h.peer(r)
	if err != nil {
		writeErr(r.Context(), w, "handler.History", err)
		return
	}
	cursor, limit := pageParams(r)

	msgs, next, err := h.chatSvc.History(r.Context(), me.ID, peer.ID, cursor, limit)
	if err != nil {
		writeErr(r.Context(), w, "handler.History", err)
		return
	}

	resp := MessagesResponse{Items: make([]MessageItem, 0, len(msgs)), NextCursor: next}
	for _, m := range msgs {
		resp.Items = append(resp.Items, toMessageItem(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /chats/{userID}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	me, peer, err := h.peer(r)
	if err != nil {
		writeErr(r.Context(), w, "handler.SendMessage", err)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}

	refs := domain.MessageRefs{StoryReplyID: req.StoryID, SharedReelID: req.SharedReel}
	msg, err := h.chatSvc.Send(r.Context(), me, peer.ID, req.Content, refs)
	if err != nil && msg == nil {
		writeErr(r.Context(), w, "handler.SendMessage", err)
		return
	}
	if err != nil {
		// сообщение сохранено, не удалась только рассылка
		logger.FromContext(r.Context()).Warn("handler.SendMessage: publish", slog.Any("err", err))
	}

	writeJSON(w, http.StatusCreated, toMessageItem(*msg))
}

// POST /chats/{userID}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	me, peer, err := h.peer(r)
	if err != nil {
		writeErr(r.Context(), w, "handler.MarkRead", err)
		return
	}

	n, err := h.chatSvc.MarkRead(r.Context(), me, peer.ID)
	if err != nil {
		writeErr(r.Context(), w, "handler.MarkRead", err)
		return
	}
	writeJSON(w, http.StatusOK, MarkReadResponse{Marked: n})
}

// GET /users/{userID}/presence
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeErr(r.Context(), w, "handler.GetPresence", err)
		return
	}

	p, err := h.presenceSvc.Get(r.Context(), userID)
	if err != nil {
		writeErr(r.Context(), w, "handler.GetPresence", err)
		return
	}
	writeJSON(w, http.StatusOK, PresenceItem{
		UserID:   p.UserID,
		Username: p.Username,
		IsOnline: p.IsOnline,
		LastSeen: p.LastSeen,
	})
}

// POST /internal/users/{userID}/notifications
func (h *Handler) DeliverNotification(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeErr(r.Context(), w, "handler.DeliverNotification", err)
		return
	}

	var n domain.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	if err := h.notifySvc.Deliver(r.Context(), userID, n); err != nil {
		writeErr(r.Context(), w, "handler.DeliverNotification", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DELETE /internal/users/{userID}/notifications/{notificationID}
func (h *Handler) RetractNotification(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeErr(r.Context(), w, "handler.RetractNotification", err)
		return
	}
	notificationID, err := pathID(r, "notificationID")
	if err != nil {
		writeErr(r.Context(), w, "handler.RetractNotification", err)
		return
	}

	if err := h.notifySvc.Retract(r.Context(), userID, notificationID); err != nil {
		writeErr(r.Context(), w, "handler.RetractNotification", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
