// Package protocol описывает кадры клиента и события сервера для websocket-каналов.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFrame   = errors.New("unknown frame type")
)

type FrameKind string

const (
	FrameSend          FrameKind = "send"
	FrameMarkRead      FrameKind = "mark_read"
	FrameEditMessage   FrameKind = "edit_message"
	FrameDeleteMessage FrameKind = "delete_message"
	FrameCallOffer     FrameKind = "call_offer"
	FrameCallAnswer    FrameKind = "call_answer"
	FrameICECandidate  FrameKind = "new_ice_candidate"
	FrameCallEnded     FrameKind = "call_ended"
)

// IsCallSignal сообщает, относится ли тип к сигналингу звонка.
func (k FrameKind) IsCallSignal() bool {
	switch k {
	case FrameCallOffer, FrameCallAnswer, FrameICECandidate, FrameCallEnded:
		return true
	}
	return false
}

// Frame — входящий кадр чата. Набор реализаций закрыт: SendMessage, MarkRead,
// EditMessage, DeleteMessage, CallFrame.
type Frame interface {
	Kind() FrameKind
	frame()
}

type SendMessage struct {
	Content      string
	StoryReplyID *int64
	SharedReelID *int64
}

type MarkRead struct{}

type EditMessage struct {
	ID      int64
	Content string
}

type DeleteMessage struct {
	ID int64
}

// CallFrame пересылается собеседнику без разбора; Data — исходный кадр целиком.
type CallFrame struct {
	Signal FrameKind
	Data   json.RawMessage
}

func (SendMessage) Kind() FrameKind   { return FrameSend }
func (MarkRead) Kind() FrameKind      { return FrameMarkRead }
func (EditMessage) Kind() FrameKind   { return FrameEditMessage }
func (DeleteMessage) Kind() FrameKind { return FrameDeleteMessage }
func (c CallFrame) Kind() FrameKind   { return c.Signal }

func (SendMessage) frame()   {}
func (MarkRead) frame()      {}
func (EditMessage) frame()   {}
func (DeleteMessage) frame() {}
func (CallFrame) frame()     {}

type rawFrame struct {
	Type       string          `json:"type"`
	Message    string          `json:"message"`
	Content    string          `json:"content"`
	ID         json.RawMessage `json:"id"`
	StoryID    json.RawMessage `json:"story_id"`
	SharedReel json.RawMessage `json:"shared_reel"`
}

// DecodeFrame разбирает текстовый кадр клиента.
// Кадр без type, но с message/content, считается отправкой сообщения.
func DecodeFrame(data []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	kind := FrameKind(raw.Type)
	switch {
	case kind == "" || kind == FrameSend || kind == "chat_message":
		story, err := optionalID(raw.StoryID)
		if err != nil {
			return nil, err
		}
		reel, err := optionalID(raw.SharedReel)
		if err != nil {
			return nil, err
		}
		return SendMessage{Content: firstNonEmpty(raw.Message, raw.Content), StoryReplyID: story, SharedReelID: reel}, nil

	case kind == FrameMarkRead:
		return MarkRead{}, nil

	case kind == FrameEditMessage:
		id, err := requiredID(raw.ID)
		if err != nil {
			return nil, err
		}
		return EditMessage{ID: id, Content: firstNonEmpty(raw.Content, raw.Message)}, nil

	case kind == FrameDeleteMessage:
		id, err := requiredID(raw.ID)
		if err != nil {
			return nil, err
		}
		return DeleteMessage{ID: id}, nil

	case kind.IsCallSignal():
		return CallFrame{Signal: kind, Data: json.RawMessage(bytes.Clone(data))}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, raw.Type)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func requiredID(raw json.RawMessage) (int64, error) {
	id, err := optionalID(raw)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, fmt.Errorf("%w: id is required", ErrMalformedFrame)
	}
	return *id, nil
}

// optionalID принимает число или строку с числом; null и отсутствие поля дают nil.
func optionalID(raw json.RawMessage) (*int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: bad id %s", ErrMalformedFrame, raw)
		}
		n = json.Number(s)
	}
	id, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad id %s", ErrMalformedFrame, raw)
	}
	return &id, nil
}
