package likes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/holehole5566/connecthub/internal/domain/enums"
	"github.com/holehole5566/connecthub/internal/domain/rules"
	matchessvc "github.com/holehole5566/connecthub/internal/services/matches"
)

var (
	ErrValidation      = errors.New("validation error")
	ErrDependenciesNil = errors.New("likes dependencies are not configured")
)

// LikeCounter counts likes a user sent of one type since a moment.
type LikeCounter interface {
	CountSince(ctx context.Context, fromUserID int64, likeType string, since time.Time) (int, error)
}

// Config sets the daily allowances. A non-positive allowance is reported as unknown.
type Config struct {
	LikesPerDay      int
	SuperLikesPerDay int
	DefaultTimezone  string
}

// Service reports how many likes of each type a user has left today. It does
// not block likes; the numbers are informational.
type Service struct {
	counter LikeCounter
	cfg     Config
	loc     *time.Location
	now     func() time.Time
}

func NewService(counter LikeCounter, cfg Config) *Service {
	return &Service{
		counter: counter,
		cfg:     cfg,
		loc:     resolveTimezone(cfg.DefaultTimezone),
		now:     time.Now,
	}
}

// Remaining implements the match engine's quota provider.
func (s *Service) Remaining(ctx context.Context, userID int64) (matchessvc.Quota, error) {
	if userID <= 0 {
		return matchessvc.Quota{}, ErrValidation
	}
	if s.counter == nil {
		return matchessvc.Quota{}, ErrDependenciesNil
	}

	since := rules.DayStart(s.now(), s.loc)

	likes, err := s.remaining(ctx, userID, enums.LikeTypeLike, s.cfg.LikesPerDay, since)
	if err != nil {
		return matchessvc.Quota{}, err
	}
	superLikes, err := s.remaining(ctx, userID, enums.LikeTypeSuper, s.cfg.SuperLikesPerDay, since)
	if err != nil {
		return matchessvc.Quota{}, err
	}

	quota := matchessvc.Quota{LikesRemaining: likes, SuperLikesRemaining: superLikes}
	if likes != nil || superLikes != nil {
		// Allowances start over at the next local midnight.
		resetAt := rules.NextResetAt(s.now(), s.loc)
		quota.ResetAt = &resetAt
	}
	return quota, nil
}

func (s *Service) remaining(ctx context.Context, userID int64, likeType enums.LikeType, allowance int, since time.Time) (*int, error) {
	if allowance <= 0 {
		return nil, nil
	}
	used, err := s.counter.CountSince(ctx, userID, string(likeType), since)
	if err != nil {
		return nil, fmt.Errorf("count %s likes: %w", likeType, err)
	}
	left := allowance - used
	if left < 0 {
		left = 0
	}
	return &left, nil
}

func resolveTimezone(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
