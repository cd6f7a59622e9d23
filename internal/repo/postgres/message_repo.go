package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageRepo struct {
	pool *pgxpool.Pool
}

type MessageRecord struct {
	ID         string
	Seq        int64
	MatchID    int64
	FromUserID int64
	Text       string
	SentAt     time.Time
	Status     string
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Insert stores rec and fills in the generated id and sequence number.
func (r *MessageRepo) Insert(ctx context.Context, tx pgx.Tx, rec MessageRecord) (MessageRecord, error) {
	if tx == nil {
		return MessageRecord{}, fmt.Errorf("transaction is required")
	}
	if rec.MatchID <= 0 || rec.FromUserID <= 0 || rec.Text == "" {
		return MessageRecord{}, fmt.Errorf("invalid message payload")
	}
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return MessageRecord{}, fmt.Errorf("generate message id: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Status == "" {
		rec.Status = "sent"
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now().UTC()
	}

	if err := tx.QueryRow(ctx, `
INSERT INTO messages (
	id,
	match_id,
	from_user_id,
	text,
	sent_at,
	status
) VALUES ($1::uuid, $2, $3, $4, $5, $6)
RETURNING seq, sent_at
`, rec.ID, rec.MatchID, rec.FromUserID, rec.Text, rec.SentAt, rec.Status).Scan(&rec.Seq, &rec.SentAt); err != nil {
		return MessageRecord{}, fmt.Errorf("insert message: %w", err)
	}

	return rec, nil
}

// ListPage returns up to limit messages of the match, newest first.
// When beforeID is set only messages strictly older than it are returned.
func (r *MessageRepo) ListPage(ctx context.Context, matchID int64, beforeID string, limit int) ([]MessageRecord, error) {
	if r.pool == nil {
		return nil, ErrPoolUnavailable
	}
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if beforeID == "" {
		rows, err = r.pool.Query(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE match_id = $1
ORDER BY sent_at DESC, seq DESC
LIMIT $2
`, matchID, limit)
	} else {
		if _, parseErr := uuid.Parse(beforeID); parseErr != nil {
			return nil, ErrMessageNotFound
		}
		var exists bool
		if err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1::uuid AND match_id = $2)
`, beforeID, matchID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("lookup cursor message: %w", err)
		}
		if !exists {
			return nil, ErrMessageNotFound
		}
		rows, err = r.pool.Query(ctx, `
SELECT `+messageColumns+`
FROM messages
WHERE match_id = $1
	AND (sent_at, seq) < (SELECT c.sent_at, c.seq FROM messages c WHERE c.id = $2::uuid)
ORDER BY sent_at DESC, seq DESC
LIMIT $3
`, matchID, beforeID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]MessageRecord, 0, limit)
	for rows.Next() {
		rec, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate messages: %w", rows.Err())
	}

	return items, nil
}

// LastSentAt reports the newest sent_at in the match, or zero time when it has none.
func (r *MessageRepo) LastSentAt(ctx context.Context, matchID int64) (time.Time, error) {
	if r.pool == nil {
		return time.Time{}, ErrPoolUnavailable
	}

	var last *time.Time
	if err := r.pool.QueryRow(ctx, `
SELECT MAX(sent_at) FROM messages WHERE match_id = $1
`, matchID).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("last message time: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

// MarkRead flips messages sent to readerID in the match to read and returns how many changed.
func (r *MessageRepo) MarkRead(ctx context.Context, matchID, readerID int64) (int64, error) {
	if r.pool == nil {
		return 0, ErrPoolUnavailable
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE messages
SET status = 'read'
WHERE match_id = $1 AND from_user_id <> $2 AND status <> 'read'
`, matchID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

const messageColumns = `id::text, seq, match_id, from_user_id, text, sent_at, status`

func scanMessage(row pgx.Row) (MessageRecord, error) {
	var rec MessageRecord
	err := row.Scan(
		&rec.ID,
		&rec.Seq,
		&rec.MatchID,
		&rec.FromUserID,
		&rec.Text,
		&rec.SentAt,
		&rec.Status,
	)
	return rec, err
}
