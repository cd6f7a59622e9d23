package matches

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/holehole5566/connecthub/internal/domain/enums"
	"github.com/holehole5566/connecthub/internal/domain/model"
	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
)

type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type UserStore interface {
	LockShared(ctx context.Context, tx pgx.Tx, userID int64) error
}

type LikeStore interface {
	Insert(ctx context.Context, tx pgx.Tx, fromUserID, toUserID int64, likeType string) (pgrepo.LikeRecord, error)
	Exists(ctx context.Context, tx pgx.Tx, fromUserID, toUserID int64) (bool, error)
}

type MatchStore interface {
	LockPair(ctx context.Context, tx pgx.Tx, userID, targetID int64) error
	CreateForPair(ctx context.Context, tx pgx.Tx, userID, matchedUserID int64) (pgrepo.MatchRecord, bool, error)
	GetByID(ctx context.Context, matchID int64) (pgrepo.MatchRecord, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]pgrepo.MatchSummaryRecord, error)
	SetLastMessage(ctx context.Context, tx pgx.Tx, matchID int64, messageID string) (bool, error)
	MarkSeen(ctx context.Context, matchID, userID int64) (bool, error)
}

// QuotaProvider reports remaining like allowances. Nil fields mean unknown.
type QuotaProvider interface {
	Remaining(ctx context.Context, userID int64) (Quota, error)
}

type Quota struct {
	LikesRemaining      *int
	SuperLikesRemaining *int
	ResetAt             *time.Time
}

type noQuota struct{}

func (noQuota) Remaining(context.Context, int64) (Quota, error) {
	return Quota{}, nil
}

type Service struct {
	tx         TxManager
	users      UserStore
	likeStore  LikeStore
	matchStore MatchStore
	quota      QuotaProvider
}

type Dependencies struct {
	Tx         TxManager
	Users      UserStore
	LikeStore  LikeStore
	MatchStore MatchStore
	Quota      QuotaProvider
}

// LikeResult carries the match whenever the pair is matched. Created is set
// only for the like that produced it.
type LikeResult struct {
	Like    model.Like
	Match   *model.Match
	Created bool
	Quota   Quota
}

func (r LikeResult) IsMatch() bool {
	return r.Created
}

type LastMessage struct {
	ID                string
	Text              string
	SentAt            time.Time
	IsFromCurrentUser bool
}

type MatchSummary struct {
	Match       model.Match
	OtherUser   model.User
	LastMessage *LastMessage
}

func NewService(deps Dependencies) *Service {
	quota := deps.Quota
	if quota == nil {
		quota = noQuota{}
	}

	return &Service{
		tx:         deps.Tx,
		users:      deps.Users,
		likeStore:  deps.LikeStore,
		matchStore: deps.MatchStore,
		quota:      quota,
	}
}

// Like records the like and creates the match when the reverse like exists.
// Concurrent mutual likes on the same pair produce exactly one match.
func (s *Service) Like(ctx context.Context, fromUserID, toUserID int64, rawType string) (LikeResult, error) {
	if fromUserID <= 0 || toUserID <= 0 || fromUserID == toUserID {
		return LikeResult{}, fmt.Errorf("invalid like participants: %w", ErrValidation)
	}
	likeType, ok := enums.ParseLikeType(rawType)
	if !ok {
		return LikeResult{}, fmt.Errorf("unknown like type %q: %w", rawType, ErrValidation)
	}
	if s.tx == nil || s.likeStore == nil || s.matchStore == nil {
		return LikeResult{}, fmt.Errorf("like dependencies are not configured")
	}

	var result LikeResult
	if err := s.tx.WithinTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if s.users != nil {
			if err := s.users.LockShared(txCtx, tx, toUserID); err != nil {
				if errors.Is(err, pgrepo.ErrUserNotFound) {
					return ErrNotFound
				}
				return err
			}
		}
		if err := s.matchStore.LockPair(txCtx, tx, fromUserID, toUserID); err != nil {
			return err
		}

		like, err := s.likeStore.Insert(txCtx, tx, fromUserID, toUserID, string(likeType))
		if err != nil {
			return err
		}
		result.Like = model.Like{
			ID:         like.ID,
			FromUserID: like.FromUserID,
			ToUserID:   like.ToUserID,
			Type:       likeType,
			CreatedAt:  like.CreatedAt,
		}

		mutual, err := s.likeStore.Exists(txCtx, tx, toUserID, fromUserID)
		if err != nil {
			return err
		}
		if !mutual {
			return nil
		}

		match, created, err := s.matchStore.CreateForPair(txCtx, tx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		mapped := mapMatch(match)
		if !created {
			mapped.IsNewMatch = false
		}
		result.Match = &mapped
		result.Created = created
		return nil
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return LikeResult{}, err
		}
		return LikeResult{}, fmt.Errorf("like: %w", err)
	}

	// The like is committed at this point; a quota lookup failure only
	// leaves the counters unknown.
	if quota, err := s.quota.Remaining(ctx, fromUserID); err == nil {
		result.Quota = quota
	}

	return result, nil
}

func (s *Service) ListMatches(ctx context.Context, userID int64, limit int) ([]MatchSummary, error) {
	if userID <= 0 {
		return nil, ErrValidation
	}
	if s.matchStore == nil {
		return nil, fmt.Errorf("match store is nil")
	}

	rows, err := s.matchStore.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}

	items := make([]MatchSummary, 0, len(rows))
	for _, row := range rows {
		item := MatchSummary{
			Match:     mapMatch(row.Match),
			OtherUser: mapUser(row.OtherUser),
		}
		if row.LastMessage != nil {
			item.LastMessage = &LastMessage{
				ID:                row.LastMessage.ID,
				Text:              row.LastMessage.Text,
				SentAt:            row.LastMessage.SentAt,
				IsFromCurrentUser: row.LastMessage.FromUserID == userID,
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// GetForParticipant loads the match only when userID is one of its two users.
func (s *Service) GetForParticipant(ctx context.Context, matchID, userID int64) (model.Match, error) {
	if matchID <= 0 || userID <= 0 {
		return model.Match{}, ErrValidation
	}

	rec, err := s.matchStore.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return model.Match{}, ErrNotFound
		}
		return model.Match{}, fmt.Errorf("get match: %w", err)
	}

	match := mapMatch(rec)
	if !match.Involves(userID) {
		return model.Match{}, ErrNotFound
	}
	return match, nil
}

// RecordLastMessage points the match at messageID inside tx unless a newer
// message is already recorded. tx must be the one that inserted the message.
func (s *Service) RecordLastMessage(ctx context.Context, tx pgx.Tx, matchID int64, messageID string) error {
	if matchID <= 0 || messageID == "" {
		return ErrValidation
	}
	if s.matchStore == nil {
		return fmt.Errorf("match store is nil")
	}

	updated, err := s.matchStore.SetLastMessage(ctx, tx, matchID, messageID)
	if err != nil {
		return fmt.Errorf("record last message: %w", err)
	}
	if updated {
		return nil
	}

	if _, err := s.matchStore.GetByID(ctx, matchID); err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get match: %w", err)
	}
	return nil
}

func (s *Service) MarkSeen(ctx context.Context, matchID, userID int64) error {
	if matchID <= 0 || userID <= 0 {
		return ErrValidation
	}

	ok, err := s.matchStore.MarkSeen(ctx, matchID, userID)
	if err != nil {
		return fmt.Errorf("mark match seen: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func mapMatch(rec pgrepo.MatchRecord) model.Match {
	return model.Match{
		ID:            rec.ID,
		UserID:        rec.UserID,
		MatchedUserID: rec.MatchedUserID,
		MatchedAt:     rec.MatchedAt,
		LastMessageID: rec.LastMessageID,
		IsNewMatch:    rec.IsNewMatch,
	}
}

func mapUser(rec pgrepo.UserRecord) model.User {
	user := model.User{
		ID:        rec.ID,
		Username:  rec.Username,
		FirstName: rec.FirstName,
		Age:       rec.Age,
		Gender:    rec.Gender,
		Bio:       rec.Bio,
		Photos:    rec.Photos,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		user.Location = &model.Location{
			Latitude:  *rec.Latitude,
			Longitude: *rec.Longitude,
			City:      rec.City,
		}
	}
	return user
}
