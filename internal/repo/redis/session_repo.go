package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	authsvc "github.com/holehole5566/connecthub/internal/services/auth"
)

const (
	sessionPrefix      = "session:"
	userSessionsPrefix = "user_sessions:"
)

// refreshScript extends a live session without touching its identity fields.
// It is a no-op returning 0 when the session key is gone.
var refreshScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'expires_at', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
local indexTTL = redis.call('PTTL', KEYS[2])
if indexTTL >= 0 and indexTTL < tonumber(ARGV[2]) then
	redis.call('PEXPIRE', KEYS[2], ARGV[2])
end
return 1
`)

type SessionRepo struct {
	client *goredis.Client
	now    func() time.Time
}

func NewSessionRepo(client *goredis.Client) *SessionRepo {
	return &SessionRepo{client: client, now: time.Now}
}

func (r *SessionRepo) Create(ctx context.Context, session authsvc.SessionRecord) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(session.Token) == "" || session.UserID <= 0 {
		return authsvc.ErrInvalidInput
	}

	ttl := r.ttlFor(session.ExpiresAt)
	fields := map[string]interface{}{
		"user_id":    session.UserID,
		"created_at": session.CreatedAt.UnixMilli(),
		"expires_at": session.ExpiresAt.UnixMilli(),
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(session.Token), fields)
	pipe.PExpire(ctx, sessionKey(session.Token), ttl)
	pipe.SAdd(ctx, userSessionsKey(session.UserID), session.Token)
	pipe.PExpire(ctx, userSessionsKey(session.UserID), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create redis session: %w", err)
	}

	return nil
}

func (r *SessionRepo) Get(ctx context.Context, token string) (authsvc.SessionRecord, error) {
	if r.client == nil {
		return authsvc.SessionRecord{}, fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(token) == "" {
		return authsvc.SessionRecord{}, authsvc.ErrSessionNotFound
	}

	values, err := r.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return authsvc.SessionRecord{}, fmt.Errorf("get session hash: %w", err)
	}
	if len(values) == 0 {
		return authsvc.SessionRecord{}, authsvc.ErrSessionNotFound
	}

	session, err := parseSessionRecord(values)
	if err != nil {
		return authsvc.SessionRecord{}, err
	}
	session.Token = token
	return session, nil
}

// Refresh moves expires_at and the key TTL to expiresAt. A session deleted
// concurrently stays deleted and ErrSessionNotFound is returned.
func (r *SessionRepo) Refresh(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(token) == "" {
		return authsvc.ErrSessionNotFound
	}

	ttl := r.ttlFor(expiresAt)
	res, err := refreshScript.Run(ctx, r.client,
		[]string{sessionKey(token), userSessionsKey(userID)},
		expiresAt.UnixMilli(),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	if res == 0 {
		return authsvc.ErrSessionNotFound
	}

	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, token string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	userIDRaw, err := r.client.HGet(ctx, sessionKey(token), "user_id").Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("load session for delete: %w", err)
	}

	pipe := r.client.TxPipeline()
	deleted := pipe.Del(ctx, sessionKey(token))
	if userID, parseErr := strconv.ParseInt(userIDRaw, 10, 64); parseErr == nil && userID > 0 {
		pipe.SRem(ctx, userSessionsKey(userID), token)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}

	return deleted.Val() > 0, nil
}

func (r *SessionRepo) DeleteAllForUser(ctx context.Context, userID int64) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if userID <= 0 {
		return 0, authsvc.ErrInvalidInput
	}

	tokens, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}

	removed := 0
	for _, token := range tokens {
		ok, err := r.Delete(ctx, token)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	if err := r.client.Del(ctx, userSessionsKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("delete user sessions key: %w", err)
	}

	return removed, nil
}

// PruneUserIndexes drops index entries whose session already expired.
// It walks every user_sessions set with SCAN and returns the number of
// removed entries.
func (r *SessionRepo) PruneUserIndexes(ctx context.Context, batch int64) (int, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if batch <= 0 {
		batch = 100
	}

	removed := 0
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, userSessionsPrefix+"*", batch).Result()
		if err != nil {
			return removed, fmt.Errorf("scan user session indexes: %w", err)
		}

		for _, key := range keys {
			n, err := r.pruneIndex(ctx, key)
			if err != nil {
				return removed, err
			}
			removed += n
		}

		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

func (r *SessionRepo) pruneIndex(ctx context.Context, key string) (int, error) {
	tokens, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("list session index %s: %w", key, err)
	}

	stale := make([]interface{}, 0)
	for _, token := range tokens {
		exists, err := r.client.Exists(ctx, sessionKey(token)).Result()
		if err != nil {
			return 0, fmt.Errorf("check session: %w", err)
		}
		if exists == 0 {
			stale = append(stale, token)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := r.client.SRem(ctx, key, stale...).Err(); err != nil {
		return 0, fmt.Errorf("prune session index %s: %w", key, err)
	}
	return len(stale), nil
}

func parseSessionRecord(values map[string]string) (authsvc.SessionRecord, error) {
	userID, err := strconv.ParseInt(values["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		return authsvc.SessionRecord{}, authsvc.ErrUnauthorized
	}

	expiresMillis, err := strconv.ParseInt(values["expires_at"], 10, 64)
	if err != nil {
		return authsvc.SessionRecord{}, authsvc.ErrUnauthorized
	}

	var createdAt time.Time
	if createdMillis, err := strconv.ParseInt(values["created_at"], 10, 64); err == nil {
		createdAt = time.UnixMilli(createdMillis).UTC()
	}

	return authsvc.SessionRecord{
		UserID:    userID,
		CreatedAt: createdAt,
		ExpiresAt: time.UnixMilli(expiresMillis).UTC(),
	}, nil
}

func (r *SessionRepo) ttlFor(expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(r.now())
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}

func sessionKey(token string) string {
	return sessionPrefix + token
}

func userSessionsKey(userID int64) string {
	return userSessionsPrefix + strconv.FormatInt(userID, 10)
}
