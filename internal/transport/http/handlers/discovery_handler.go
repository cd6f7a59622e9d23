package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
	discoverysvc "github.com/holehole5566/connecthub/internal/services/discovery"
	"github.com/holehole5566/connecthub/internal/transport/http/dto"
	httperrors "github.com/holehole5566/connecthub/internal/transport/http/errors"
)

type DiscoveryHandler struct {
	service *discoverysvc.Service
}

func NewDiscoveryHandler(service *discoverysvc.Service) *DiscoveryHandler {
	return &DiscoveryHandler{service: service}
}

func (h *DiscoveryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "DISCOVERY_SERVICE_UNAVAILABLE", "discovery service is unavailable")
		return
	}

	filters := h.service.DefaultFilters()
	query := r.URL.Query()
	for _, param := range []struct {
		name   string
		target *int
	}{
		{name: "age_min", target: &filters.AgeMin},
		{name: "age_max", target: &filters.AgeMax},
		{name: "max_distance", target: &filters.MaxDistanceKM},
		{name: "limit", target: &filters.Limit},
	} {
		raw := strings.TrimSpace(query.Get(param.name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "VALIDATION_ERROR", param.name+" must be an integer")
			return
		}
		*param.target = value
	}

	items, err := h.service.Discover(r.Context(), identity.UserID, filters)
	if err != nil {
		switch {
		case errors.Is(err, discoverysvc.ErrLocationRequired):
			writeBadRequest(w, "VALIDATION_ERROR", "User location required")
		case errors.Is(err, discoverysvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", strings.TrimSuffix(err.Error(), ": "+discoverysvc.ErrValidation.Error()))
		case errors.Is(err, discoverysvc.ErrNotFound):
			writeNotFound(w, "NOT_FOUND", "user not found")
		default:
			writeUnavailable(w, "TEMPORARILY_UNAVAILABLE", "failed to load discovery")
		}
		return
	}

	responseItems := make([]dto.DiscoveryCandidateResponse, 0, len(items))
	for _, item := range items {
		photos := item.Photos
		if photos == nil {
			photos = []string{}
		}
		responseItems = append(responseItems, dto.DiscoveryCandidateResponse{
			ID:        item.UserID,
			Username:  item.Username,
			FirstName: item.FirstName,
			Age:       item.Age,
			Gender:    item.Gender,
			Bio:       item.Bio,
			Photos:    photos,
			PhotoURL:  item.PhotoURL,
			City:      item.City,
			Distance:  item.DistanceKM,
		})
	}

	httperrors.Write(w, http.StatusOK, dto.DiscoveryResponse{Items: responseItems})
}
