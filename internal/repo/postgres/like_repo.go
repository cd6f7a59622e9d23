package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type LikeRepo struct {
	pool *pgxpool.Pool
}

type LikeRecord struct {
	ID         int64
	FromUserID int64
	ToUserID   int64
	Type       string
	CreatedAt  time.Time
}

func NewLikeRepo(pool *pgxpool.Pool) *LikeRepo {
	return &LikeRepo{pool: pool}
}

// Insert always appends a row; repeated likes for the same pair are allowed.
func (r *LikeRepo) Insert(ctx context.Context, tx pgx.Tx, fromUserID, toUserID int64, likeType string) (LikeRecord, error) {
	if fromUserID <= 0 || toUserID <= 0 || fromUserID == toUserID {
		return LikeRecord{}, fmt.Errorf("invalid like payload")
	}
	if tx == nil {
		return LikeRecord{}, fmt.Errorf("transaction is required")
	}

	rec := LikeRecord{FromUserID: fromUserID, ToUserID: toUserID, Type: likeType}
	if err := tx.QueryRow(ctx, `
INSERT INTO likes (
	from_user_id,
	to_user_id,
	type,
	created_at
) VALUES ($1, $2, $3, NOW())
RETURNING id, created_at
`, fromUserID, toUserID, likeType).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return LikeRecord{}, fmt.Errorf("insert like: %w", err)
	}

	return rec, nil
}

func (r *LikeRepo) Exists(ctx context.Context, tx pgx.Tx, fromUserID, toUserID int64) (bool, error) {
	if fromUserID <= 0 || toUserID <= 0 {
		return false, fmt.Errorf("invalid like lookup payload")
	}
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}

	var one int
	err := tx.QueryRow(ctx, `
SELECT 1
FROM likes
WHERE from_user_id = $1 AND to_user_id = $2
LIMIT 1
`, fromUserID, toUserID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup like: %w", err)
	}

	return true, nil
}

func (r *LikeRepo) CountSince(ctx context.Context, fromUserID int64, likeType string, since time.Time) (int, error) {
	if r.pool == nil {
		return 0, ErrPoolUnavailable
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM likes
WHERE from_user_id = $1 AND type = $2 AND created_at >= $3
`, fromUserID, likeType, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}

	return count, nil
}
