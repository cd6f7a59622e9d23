package chat

import (
	"time"

	"github.com/holehole5566/connecthub/internal/domain/enums"
	"github.com/holehole5566/connecthub/internal/domain/model"
)

const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"

	EventJoined     = "joined"
	EventLeft       = "left"
	EventNewMessage = "new_message"
	EventError      = "error"
)

const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "NOT_FOUND"
	CodeNotInRoom   = "NOT_IN_ROOM"
	CodeStorage     = "STORAGE_ERROR"
	CodeBadEvent    = "BAD_EVENT"
	CodeUnavailable = "UNAVAILABLE"
)

// Event is one frame on the real-time channel, in either direction.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

type RoomPayload struct {
	MatchID int64 `json:"match_id"`
}

type MessagePayload struct {
	ID         string              `json:"id"`
	MatchID    int64               `json:"match_id"`
	FromUserID int64               `json:"from_user_id"`
	Text       string              `json:"text"`
	SentAt     time.Time           `json:"sent_at"`
	Status     enums.MessageStatus `json:"status"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func JoinedEvent(matchID int64) Event {
	return Event{Name: EventJoined, Data: RoomPayload{MatchID: matchID}}
}

func LeftEvent(matchID int64) Event {
	return Event{Name: EventLeft, Data: RoomPayload{MatchID: matchID}}
}

func NewMessageEvent(msg model.Message) Event {
	return Event{Name: EventNewMessage, Data: MessagePayload{
		ID:         msg.ID,
		MatchID:    msg.MatchID,
		FromUserID: msg.FromUserID,
		Text:       msg.Text,
		SentAt:     msg.SentAt,
		Status:     msg.Status,
	}}
}

func ErrorEvent(code, message string) Event {
	return Event{Name: EventError, Data: ErrorPayload{Message: message, Code: code}}
}
