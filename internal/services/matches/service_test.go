package matches

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holehole5566/connecthub/internal/domain/model"
	pgrepo "github.com/holehole5566/connecthub/internal/repo/postgres"
)

// serialTx runs each transaction body under one lock, standing in for the
// pair advisory lock taken inside real transactions.
type serialTx struct {
	mu sync.Mutex
}

func (s *serialTx) WithinTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, nil)
}

type memUsers struct {
	ids map[int64]bool
}

func (m memUsers) LockShared(_ context.Context, _ pgx.Tx, userID int64) error {
	if !m.ids[userID] {
		return pgrepo.ErrUserNotFound
	}
	return nil
}

type memStore struct {
	mu      sync.Mutex
	likes   []pgrepo.LikeRecord
	matches []pgrepo.MatchRecord
	lastMsg map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{lastMsg: map[string]time.Time{}}
}

func (m *memStore) Insert(_ context.Context, _ pgx.Tx, from, to int64, likeType string) (pgrepo.LikeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := pgrepo.LikeRecord{ID: int64(len(m.likes) + 1), FromUserID: from, ToUserID: to, Type: likeType, CreatedAt: time.Now()}
	m.likes = append(m.likes, rec)
	return rec, nil
}

func (m *memStore) Exists(_ context.Context, _ pgx.Tx, from, to int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.likes {
		if l.FromUserID == from && l.ToUserID == to {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) LockPair(context.Context, pgx.Tx, int64, int64) error {
	return nil
}

func (m *memStore) CreateForPair(_ context.Context, _ pgx.Tx, userID, matchedUserID int64) (pgrepo.MatchRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	low, high := model.CanonicalPair(userID, matchedUserID)
	for _, existing := range m.matches {
		a, b := model.CanonicalPair(existing.UserID, existing.MatchedUserID)
		if a == low && b == high {
			return existing, false, nil
		}
	}
	rec := pgrepo.MatchRecord{
		ID:            int64(len(m.matches) + 1),
		UserID:        userID,
		MatchedUserID: matchedUserID,
		MatchedAt:     time.Now(),
		IsNewMatch:    true,
	}
	m.matches = append(m.matches, rec)
	return rec, true, nil
}

func (m *memStore) GetByID(_ context.Context, matchID int64) (pgrepo.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.matches {
		if rec.ID == matchID {
			return rec, nil
		}
	}
	return pgrepo.MatchRecord{}, pgrepo.ErrMatchNotFound
}

func (m *memStore) ListForUser(_ context.Context, userID int64, _ int) ([]pgrepo.MatchSummaryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]pgrepo.MatchSummaryRecord, 0)
	for _, rec := range m.matches {
		if rec.UserID != userID && rec.MatchedUserID != userID {
			continue
		}
		other := rec.UserID
		if other == userID {
			other = rec.MatchedUserID
		}
		item := pgrepo.MatchSummaryRecord{Match: rec, OtherUser: pgrepo.UserRecord{ID: other}}
		if rec.LastMessageID != nil {
			item.LastMessage = &pgrepo.LastMessageRecord{ID: *rec.LastMessageID, Text: "hi", FromUserID: other, SentAt: m.lastMsg[*rec.LastMessageID]}
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *memStore) SetLastMessage(_ context.Context, _ pgx.Tx, matchID int64, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.matches {
		if m.matches[i].ID == matchID {
			id := messageID
			m.matches[i].LastMessageID = &id
			m.lastMsg[id] = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) MarkSeen(_ context.Context, matchID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.matches {
		rec := &m.matches[i]
		if rec.ID == matchID && (rec.UserID == userID || rec.MatchedUserID == userID) {
			rec.IsNewMatch = false
			return true, nil
		}
	}
	return false, nil
}

type fixedQuota struct{ likes, supers int }

func (f fixedQuota) Remaining(context.Context, int64) (Quota, error) {
	return Quota{LikesRemaining: &f.likes, SuperLikesRemaining: &f.supers}, nil
}

func newTestService(store *memStore, quota QuotaProvider) *Service {
	return NewService(Dependencies{
		Tx:         &serialTx{},
		Users:      memUsers{ids: map[int64]bool{1: true, 2: true, 3: true}},
		LikeStore:  store,
		MatchStore: store,
		Quota:      quota,
	})
}

func TestLikeLikeLikeCreatesSingleMatch(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	first, err := svc.Like(ctx, 1, 2, "like")
	require.NoError(t, err)
	assert.False(t, first.IsMatch())

	second, err := svc.Like(ctx, 2, 1, "super")
	require.NoError(t, err)
	require.True(t, second.IsMatch())
	assert.True(t, second.Match.IsNewMatch)
	assert.True(t, second.Match.Involves(1))
	assert.True(t, second.Match.Involves(2))

	third, err := svc.Like(ctx, 1, 2, "like")
	require.NoError(t, err)
	assert.False(t, third.IsMatch())
	require.NotNil(t, third.Match)
	assert.Equal(t, second.Match.ID, third.Match.ID)
	assert.False(t, third.Match.IsNewMatch)

	assert.Len(t, store.matches, 1)
	assert.Len(t, store.likes, 3)
}

func TestConcurrentMutualLikesProduceOneMatch(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)

	const workers = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		matched int
	)
	for i := 0; i < workers; i++ {
		from, to := int64(1), int64(2)
		if i%2 == 1 {
			from, to = 2, 1
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Like(context.Background(), from, to, "like")
			if err != nil {
				t.Errorf("like: %v", err)
				return
			}
			if res.IsMatch() {
				mu.Lock()
				matched++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, matched)
	assert.Len(t, store.matches, 1)
}

func TestLikeValidation(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	ctx := context.Background()

	_, err := svc.Like(ctx, 1, 1, "like")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Like(ctx, 0, 2, "like")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Like(ctx, 1, 2, "poke")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Like(ctx, 1, 99, "like")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLikeCarriesQuota(t *testing.T) {
	svc := newTestService(newMemStore(), fixedQuota{likes: 9, supers: 1})

	res, err := svc.Like(context.Background(), 1, 2, "")
	require.NoError(t, err)
	require.NotNil(t, res.Quota.LikesRemaining)
	assert.Equal(t, 9, *res.Quota.LikesRemaining)
	assert.Equal(t, 1, *res.Quota.SuperLikesRemaining)

	plain := newTestService(newMemStore(), nil)
	res, err = plain.Like(context.Background(), 1, 2, "like")
	require.NoError(t, err)
	assert.Nil(t, res.Quota.LikesRemaining)
}

func TestGetForParticipantChecksBothColumns(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Like(ctx, 1, 2, "like")
	require.NoError(t, err)
	res, err := svc.Like(ctx, 2, 1, "like")
	require.NoError(t, err)
	matchID := res.Match.ID

	for _, userID := range []int64{1, 2} {
		m, err := svc.GetForParticipant(ctx, matchID, userID)
		require.NoError(t, err)
		assert.Equal(t, matchID, m.ID)
	}

	_, err = svc.GetForParticipant(ctx, matchID, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetForParticipant(ctx, 999, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMatchesAndLastMessage(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Like(ctx, 1, 2, "like")
	require.NoError(t, err)
	res, err := svc.Like(ctx, 2, 1, "like")
	require.NoError(t, err)

	require.NoError(t, svc.RecordLastMessage(ctx, nil, res.Match.ID, "0190-msg"))
	assert.ErrorIs(t, svc.RecordLastMessage(ctx, nil, 404, "0190-msg"), ErrNotFound)
	assert.ErrorIs(t, svc.RecordLastMessage(ctx, nil, res.Match.ID, ""), ErrValidation)

	items, err := svc.ListMatches(ctx, 1, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].OtherUser.ID)
	require.NotNil(t, items[0].LastMessage)
	assert.False(t, items[0].LastMessage.IsFromCurrentUser)

	require.NoError(t, svc.MarkSeen(ctx, res.Match.ID, 1))
	assert.False(t, store.matches[0].IsNewMatch)
	assert.ErrorIs(t, svc.MarkSeen(ctx, res.Match.ID, 3), ErrNotFound)
}

type failingQuota struct{}

func (failingQuota) Remaining(context.Context, int64) (Quota, error) {
	return Quota{}, errors.New("quota store down")
}

func TestLikeSurvivesQuotaFailure(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, failingQuota{})

	res, err := svc.Like(context.Background(), 1, 2, "like")
	require.NoError(t, err)
	assert.Nil(t, res.Quota.LikesRemaining)
	assert.Equal(t, int64(1), res.Like.FromUserID)
}

func TestLikeOnMatchedPairReturnsExistingMatch(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Like(ctx, 1, 2, "like")
	require.NoError(t, err)
	created, err := svc.Like(ctx, 2, 1, "like")
	require.NoError(t, err)
	require.True(t, created.Created)

	again, err := svc.Like(ctx, 2, 1, "super")
	require.NoError(t, err)
	assert.False(t, again.IsMatch())
	require.NotNil(t, again.Match)
	assert.Equal(t, created.Match.ID, again.Match.ID)
	assert.False(t, again.Match.IsNewMatch)
	assert.Len(t, store.matches, 1)
}
