package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/holehole5566/connecthub/internal/domain/model"
	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
	chatsvc "github.com/holehole5566/connecthub/internal/services/chat"
	matchessvc "github.com/holehole5566/connecthub/internal/services/matches"
	"github.com/holehole5566/connecthub/internal/transport/http/dto"
	httperrors "github.com/holehole5566/connecthub/internal/transport/http/errors"
)

type ChatHandler struct {
	hub     *chatsvc.Hub
	matches *matchessvc.Service
}

func NewChatHandler(hub *chatsvc.Hub, matches *matchessvc.Service) *ChatHandler {
	return &ChatHandler{hub: hub, matches: matches}
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, matchID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	items, err := h.hub.History(
		r.Context(),
		identity.UserID,
		matchID,
		parseIntOrDefault(r.URL.Query().Get("limit"), chatsvc.DefaultHistoryLimit),
		strings.TrimSpace(r.URL.Query().Get("before")),
	)
	if err != nil {
		writeChatError(w, err)
		return
	}

	responseItems := make([]dto.MessageResponse, 0, len(items))
	for _, item := range items {
		responseItems = append(responseItems, mapMessage(item.Message, item.IsFromCurrentUser))
	}
	httperrors.Write(w, http.StatusOK, dto.MessagesResponse{Items: responseItems})
}

// Send posts through the hub so REST senders share room ordering and fan-out.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, matchID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	if h.matches != nil {
		if _, err := h.matches.GetForParticipant(r.Context(), matchID, identity.UserID); err != nil {
			if errors.Is(err, matchessvc.ErrNotFound) || errors.Is(err, matchessvc.ErrValidation) {
				writeNotFound(w, "NOT_FOUND", "match not found")
				return
			}
			writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "failed to load match")
			return
		}
	}

	msg, err := h.hub.Publish(r.Context(), identity.UserID, matchID, req.Text)
	if err != nil {
		writeChatError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, mapMessage(msg, true))
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	identity, matchID, ok := h.prepare(w, r)
	if !ok {
		return
	}

	updated, err := h.hub.MarkRead(r.Context(), identity.UserID, matchID)
	if err != nil {
		writeChatError(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.MarkReadResponse{Updated: updated})
}

func (h *ChatHandler) prepare(w http.ResponseWriter, r *http.Request) (authsvc.Identity, int64, bool) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return authsvc.Identity{}, 0, false
	}
	if h.hub == nil {
		writeInternal(w, "CHAT_SERVICE_UNAVAILABLE", "chat service is unavailable")
		return authsvc.Identity{}, 0, false
	}
	matchID, ok := matchIDFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid match id")
		return authsvc.Identity{}, 0, false
	}
	return identity, matchID, true
}

func writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatsvc.ErrEmptyMessage):
		writeBadRequest(w, "VALIDATION_ERROR", "Message cannot be empty")
	case errors.Is(err, chatsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, chatsvc.ErrNotFound):
		writeNotFound(w, "NOT_FOUND", "match not found")
	default:
		writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "chat storage is unavailable")
	}
}

func mapMessage(msg model.Message, fromCurrentUser bool) dto.MessageResponse {
	return dto.MessageResponse{
		ID:                msg.ID,
		MatchID:           msg.MatchID,
		FromUserID:        msg.FromUserID,
		Text:              msg.Text,
		SentAt:            msg.SentAt,
		Status:            string(msg.Status),
		IsFromCurrentUser: fromCurrentUser,
	}
}
