package handlers

import (
	"errors"
	"net/http"

	"github.com/holehole5566/connecthub/internal/pkg/validate"
	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
	matchessvc "github.com/holehole5566/connecthub/internal/services/matches"
	"github.com/holehole5566/connecthub/internal/transport/http/dto"
	httperrors "github.com/holehole5566/connecthub/internal/transport/http/errors"
)

type MatchesHandler struct {
	service *matchessvc.Service
}

func NewMatchesHandler(service *matchessvc.Service) *MatchesHandler {
	return &MatchesHandler{service: service}
}

func (h *MatchesHandler) Like(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}

	var req dto.LikeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", err.Error())
		return
	}

	res, err := h.service.Like(r.Context(), identity.UserID, req.TargetUserID, req.LikeType)
	if err != nil {
		switch {
		case errors.Is(err, matchessvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid like request")
		case errors.Is(err, matchessvc.ErrNotFound):
			writeNotFound(w, "NOT_FOUND", "target user not found")
		default:
			writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "failed to record like")
		}
		return
	}

	resp := dto.LikeResponse{
		IsMatch:             res.IsMatch(),
		LikesRemaining:      res.Quota.LikesRemaining,
		SuperLikesRemaining: res.Quota.SuperLikesRemaining,
		LikesResetAt:        res.Quota.ResetAt,
	}
	if res.Match != nil {
		resp.Match = &dto.MatchResponse{
			ID:            res.Match.ID,
			UserID:        res.Match.UserID,
			MatchedUserID: res.Match.MatchedUserID,
			MatchedAt:     res.Match.MatchedAt,
			IsNewMatch:    res.Match.IsNewMatch,
		}
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}

	items, err := h.service.ListMatches(r.Context(), identity.UserID, parseIntOrDefault(r.URL.Query().Get("limit"), 100))
	if err != nil {
		switch {
		case errors.Is(err, matchessvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid matches request")
		default:
			writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "failed to load matches")
		}
		return
	}

	responseItems := make([]dto.MatchItemResponse, 0, len(items))
	for _, item := range items {
		photos := item.OtherUser.Photos
		if photos == nil {
			photos = []string{}
		}
		entry := dto.MatchItemResponse{
			MatchID: item.Match.ID,
			OtherUser: dto.UserSummaryResponse{
				ID:        item.OtherUser.ID,
				Username:  item.OtherUser.Username,
				FirstName: item.OtherUser.FirstName,
				Age:       item.OtherUser.Age,
				Photos:    photos,
			},
			MatchedAt:  item.Match.MatchedAt,
			IsNewMatch: item.Match.IsNewMatch,
		}
		if item.OtherUser.Location != nil {
			entry.OtherUser.City = item.OtherUser.Location.City
		}
		if item.LastMessage != nil {
			entry.LastMessage = &dto.LastMessageResponse{
				Text:              item.LastMessage.Text,
				SentAt:            item.LastMessage.SentAt,
				IsFromCurrentUser: item.LastMessage.IsFromCurrentUser,
			}
		}
		responseItems = append(responseItems, entry)
	}

	httperrors.Write(w, http.StatusOK, dto.MatchesResponse{Items: responseItems})
}

func (h *MatchesHandler) Seen(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "MATCHES_SERVICE_UNAVAILABLE", "matches service is unavailable")
		return
	}
	matchID, ok := matchIDFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid match id")
		return
	}

	if err := h.service.MarkSeen(r.Context(), matchID, identity.UserID); err != nil {
		switch {
		case errors.Is(err, matchessvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid match id")
		case errors.Is(err, matchessvc.ErrNotFound):
			writeNotFound(w, "NOT_FOUND", "match not found")
		default:
			writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "failed to update match")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.OKResponse{OK: true})
}
