package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/holehole5566/connecthub/internal/domain/model"
	"github.com/holehole5566/connecthub/internal/pkg/validate"
	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrLocationRequired = errors.New("user location required")
	ErrNotFound         = errors.New("user not found")
)

type UserStore interface {
	GetByID(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
}

type CandidateStore interface {
	ListCandidates(ctx context.Context, q pgrepo.CandidateQuery) ([]pgrepo.UserRecord, error)
}

// PhotoSigner turns a stored photo key into a URL the client can fetch.
type PhotoSigner interface {
	PhotoURL(ctx context.Context, key string) (string, error)
}

type Filters struct {
	AgeMin        int `json:"age_min" validate:"min=18,max=100"`
	AgeMax        int `json:"age_max" validate:"min=18,max=100,gtefield=AgeMin"`
	MaxDistanceKM int `json:"max_distance" validate:"min=1,max=100"`
	Limit         int `json:"limit" validate:"min=1,max=50"`
}

type Config struct {
	DefaultAgeMin   int
	DefaultAgeMax   int
	DefaultDistance int
	DefaultLimit    int
}

type Candidate struct {
	UserID     int64
	Username   string
	FirstName  string
	Age        int
	Gender     string
	Bio        string
	Photos     []string
	PhotoURL   string
	City       string
	DistanceKM float64
}

type Service struct {
	users      UserStore
	candidates CandidateStore
	photos     PhotoSigner
	cfg        Config
	logger     *zap.Logger
}

type Dependencies struct {
	Users      UserStore
	Candidates CandidateStore
	Photos     PhotoSigner
	Logger     *zap.Logger
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.DefaultAgeMin <= 0 {
		cfg.DefaultAgeMin = 18
	}
	if cfg.DefaultAgeMax <= 0 {
		cfg.DefaultAgeMax = 35
	}
	if cfg.DefaultDistance <= 0 {
		cfg.DefaultDistance = 50
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		users:      deps.Users,
		candidates: deps.Candidates,
		photos:     deps.Photos,
		cfg:        cfg,
		logger:     logger,
	}
}

// DefaultFilters returns the filter set applied when a request omits values.
func (s *Service) DefaultFilters() Filters {
	return Filters{
		AgeMin:        s.cfg.DefaultAgeMin,
		AgeMax:        s.cfg.DefaultAgeMax,
		MaxDistanceKM: s.cfg.DefaultDistance,
		Limit:         s.cfg.DefaultLimit,
	}
}

// Discover lists candidates for requesterID, nearest first with ties broken
// by user id. Liked and matched users and the requester are never returned.
func (s *Service) Discover(ctx context.Context, requesterID int64, filters Filters) ([]Candidate, error) {
	if requesterID <= 0 {
		return nil, fmt.Errorf("invalid requester id: %w", ErrValidation)
	}
	if err := validate.Struct(filters); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrValidation)
	}

	requester, err := s.users.GetByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load requester: %w", err)
	}
	if requester.Latitude == nil || requester.Longitude == nil {
		return nil, ErrLocationRequired
	}
	if err := validateCoordinates(*requester.Latitude, *requester.Longitude); err != nil {
		return nil, err
	}

	origin := model.Location{Latitude: *requester.Latitude, Longitude: *requester.Longitude}.Point()
	bound, filterLon := searchBound(origin, float64(filters.MaxDistanceKM))
	rows, err := s.candidates.ListCandidates(ctx, pgrepo.CandidateQuery{
		RequesterID:     requesterID,
		AgeMin:          filters.AgeMin,
		AgeMax:          filters.AgeMax,
		Bound:           bound,
		FilterLongitude: filterLon,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	maxDistance := float64(filters.MaxDistanceKM)
	items := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		if row.ID == requesterID || row.Latitude == nil || row.Longitude == nil {
			continue
		}
		distance := distanceKM(origin, model.Location{Latitude: *row.Latitude, Longitude: *row.Longitude}.Point())
		if distance > maxDistance {
			continue
		}
		items = append(items, Candidate{
			UserID:     row.ID,
			Username:   row.Username,
			FirstName:  row.FirstName,
			Age:        row.Age,
			Gender:     row.Gender,
			Bio:        row.Bio,
			Photos:     row.Photos,
			City:       row.City,
			DistanceKM: distance,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].DistanceKM != items[j].DistanceKM {
			return items[i].DistanceKM < items[j].DistanceKM
		}
		return items[i].UserID < items[j].UserID
	})
	if len(items) > filters.Limit {
		items = items[:filters.Limit]
	}

	s.attachPhotoURLs(ctx, items)
	return items, nil
}

func (s *Service) attachPhotoURLs(ctx context.Context, items []Candidate) {
	if s.photos == nil {
		return
	}
	for i := range items {
		if len(items[i].Photos) == 0 {
			continue
		}
		url, err := s.photos.PhotoURL(ctx, items[i].Photos[0])
		if err != nil {
			s.logger.Warn("presign candidate photo failed",
				zap.Int64("user_id", items[i].UserID),
				zap.Error(err),
			)
			continue
		}
		items[i].PhotoURL = url
	}
}
