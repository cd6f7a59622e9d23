package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	chatsvc "github.com/holehole5566/connecthub/internal/services/chat"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinRoomData struct {
	MatchID *int64 `json:"match_id"`
	UserID  *int64 `json:"user_id"`
}

type leaveRoomData struct {
	MatchID *int64 `json:"match_id"`
}

type sendMessageData struct {
	MatchID    *int64  `json:"match_id"`
	FromUserID *int64  `json:"from_user_id"`
	Text       *string `json:"text"`
}

// dispatch handles one inbound frame. Problems are reported to the sending
// client only.
func (h *Handler) dispatch(ctx context.Context, client *chatsvc.Client, payload []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil || frame.Event == "" {
		h.reply(client, chatsvc.ErrorEvent(chatsvc.CodeBadEvent, "Malformed event"))
		return
	}

	switch frame.Event {
	case chatsvc.EventJoinRoom:
		var data joinRoomData
		if !h.decode(client, frame.Data, &data) {
			return
		}
		if data.MatchID == nil {
			h.reply(client, missingField("match_id"))
			return
		}
		if data.UserID != nil && *data.UserID != client.UserID {
			h.reply(client, chatsvc.ErrorEvent(chatsvc.CodeValidation, "user_id does not match session"))
			return
		}
		if err := h.hub.Join(ctx, client, *data.MatchID); err != nil {
			h.reply(client, chatsvc.ErrorEventFor(err))
		}

	case chatsvc.EventLeaveRoom:
		var data leaveRoomData
		if !h.decode(client, frame.Data, &data) {
			return
		}
		if data.MatchID == nil {
			h.reply(client, missingField("match_id"))
			return
		}
		h.hub.Leave(client, *data.MatchID)

	case chatsvc.EventSendMessage:
		var data sendMessageData
		if !h.decode(client, frame.Data, &data) {
			return
		}
		switch {
		case data.MatchID == nil:
			h.reply(client, missingField("match_id"))
			return
		case data.Text == nil:
			h.reply(client, missingField("text"))
			return
		}
		if data.FromUserID != nil && *data.FromUserID != client.UserID {
			h.reply(client, chatsvc.ErrorEvent(chatsvc.CodeValidation, "from_user_id does not match session"))
			return
		}
		if _, err := h.hub.Send(ctx, client, *data.MatchID, *data.Text); err != nil {
			if errors.Is(err, chatsvc.ErrStorage) {
				h.logger.Warn("ws send failed", zap.Int64("user_id", client.UserID), zap.Error(err))
			}
		}

	default:
		h.reply(client, chatsvc.ErrorEvent(chatsvc.CodeBadEvent, fmt.Sprintf("Unknown event: %s", frame.Event)))
	}
}

func (h *Handler) decode(client *chatsvc.Client, raw json.RawMessage, dst any) bool {
	if len(raw) == 0 {
		h.reply(client, chatsvc.ErrorEvent(chatsvc.CodeBadEvent, "Missing event data"))
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		h.reply(client, chatsvc.ErrorEvent(chatsvc.CodeBadEvent, "Malformed event data"))
		return false
	}
	return true
}

func (h *Handler) reply(client *chatsvc.Client, ev chatsvc.Event) {
	h.hub.Notify(client, ev)
}

func missingField(name string) chatsvc.Event {
	return chatsvc.ErrorEvent(chatsvc.CodeValidation, "Missing field: "+name)
}
