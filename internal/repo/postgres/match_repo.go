package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holehole5566/connecthub/internal/domain/model"
)

var ErrMatchNotFound = errors.New("match not found")

type MatchRepo struct {
	pool *pgxpool.Pool
}

type MatchRecord struct {
	ID            int64
	UserID        int64
	MatchedUserID int64
	MatchedAt     time.Time
	LastMessageID *string
	IsNewMatch    bool
}

type LastMessageRecord struct {
	ID         string
	Text       string
	FromUserID int64
	SentAt     time.Time
}

type MatchSummaryRecord struct {
	Match       MatchRecord
	OtherUser   UserRecord
	LastMessage *LastMessageRecord
}

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

// LockPair serialises like handling for one unordered pair until tx ends.
func (r *MatchRepo) LockPair(ctx context.Context, tx pgx.Tx, userID, targetID int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	low, high := model.CanonicalPair(userID, targetID)
	if _, err := tx.Exec(ctx, `
SELECT pg_advisory_xact_lock(hashtextextended($1, 0))
`, fmt.Sprintf("match_pair:%d:%d", low, high)); err != nil {
		return fmt.Errorf("lock match pair: %w", err)
	}
	return nil
}

// CreateForPair inserts the match for the unordered pair unless one already exists.
// created is false when the row was already there; the existing row is returned.
func (r *MatchRepo) CreateForPair(ctx context.Context, tx pgx.Tx, userID, matchedUserID int64) (MatchRecord, bool, error) {
	if userID <= 0 || matchedUserID <= 0 || userID == matchedUserID {
		return MatchRecord{}, false, fmt.Errorf("invalid match payload")
	}
	if tx == nil {
		return MatchRecord{}, false, fmt.Errorf("transaction is required")
	}

	rec, err := scanMatch(tx.QueryRow(ctx, `
INSERT INTO matches (
	user_id,
	matched_user_id,
	matched_at,
	is_new_match
) VALUES ($1, $2, NOW(), TRUE)
ON CONFLICT ON CONSTRAINT matches_pair_key DO NOTHING
RETURNING `+matchColumns, userID, matchedUserID))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return MatchRecord{}, false, fmt.Errorf("create match: %w", err)
	}

	low, high := model.CanonicalPair(userID, matchedUserID)
	rec, err = scanMatch(tx.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE user_low = $1 AND user_high = $2
`, low, high))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, false, ErrMatchNotFound
		}
		return MatchRecord{}, false, fmt.Errorf("load existing match: %w", err)
	}

	return rec, false, nil
}

func (r *MatchRepo) GetByID(ctx context.Context, matchID int64) (MatchRecord, error) {
	if r.pool == nil {
		return MatchRecord{}, ErrPoolUnavailable
	}

	rec, err := scanMatch(r.pool.QueryRow(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE id = $1
`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MatchRecord{}, ErrMatchNotFound
		}
		return MatchRecord{}, fmt.Errorf("get match: %w", err)
	}

	return rec, nil
}

func (r *MatchRepo) ListForUser(ctx context.Context, userID int64, limit int) ([]MatchSummaryRecord, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if limit <= 0 {
		limit = 100
	}
	if r.pool == nil {
		return nil, ErrPoolUnavailable
	}

	rows, err := r.pool.Query(ctx, `
SELECT
	m.id,
	m.user_id,
	m.matched_user_id,
	m.matched_at,
	m.last_message_id::text,
	m.is_new_match,`+userColumns+`,
	msg.id::text,
	msg.text,
	msg.from_user_id,
	msg.sent_at
FROM matches m
JOIN users u ON u.id = CASE WHEN m.user_id = $1 THEN m.matched_user_id ELSE m.user_id END
LEFT JOIN messages msg ON msg.id = m.last_message_id
WHERE m.user_id = $1 OR m.matched_user_id = $1
ORDER BY msg.sent_at DESC NULLS LAST, m.matched_at DESC, m.id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	items := make([]MatchSummaryRecord, 0)
	for rows.Next() {
		var (
			item       MatchSummaryRecord
			msgID      *string
			msgText    *string
			msgFrom    *int64
			msgSentAt  *time.Time
			lastMsgRef *string
		)
		other, err := scanUser(rowPrefix{rows: rows, prefix: []any{
			&item.Match.ID,
			&item.Match.UserID,
			&item.Match.MatchedUserID,
			&item.Match.MatchedAt,
			&lastMsgRef,
			&item.Match.IsNewMatch,
		}}, &msgID, &msgText, &msgFrom, &msgSentAt)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		item.Match.LastMessageID = lastMsgRef
		item.OtherUser = other
		if msgID != nil && msgText != nil && msgFrom != nil && msgSentAt != nil {
			item.LastMessage = &LastMessageRecord{
				ID:         *msgID,
				Text:       *msgText,
				FromUserID: *msgFrom,
				SentAt:     *msgSentAt,
			}
		}
		items = append(items, item)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate matches: %w", rows.Err())
	}

	return items, nil
}

// SetLastMessage moves the pointer forward only; an older message never replaces a newer one.
func (r *MatchRepo) SetLastMessage(ctx context.Context, tx pgx.Tx, matchID int64, messageID string) (bool, error) {
	if tx == nil {
		return false, fmt.Errorf("transaction is required")
	}
	if matchID <= 0 || messageID == "" {
		return false, fmt.Errorf("invalid last message payload")
	}

	var id int64
	err := tx.QueryRow(ctx, `
UPDATE matches m
SET last_message_id = $2::uuid
WHERE m.id = $1
	AND EXISTS (SELECT 1 FROM messages nm WHERE nm.id = $2::uuid AND nm.match_id = m.id)
	AND (
		m.last_message_id IS NULL
		OR (SELECT (nm.sent_at, nm.seq) FROM messages nm WHERE nm.id = $2::uuid)
			>= (SELECT (om.sent_at, om.seq) FROM messages om WHERE om.id = m.last_message_id)
	)
RETURNING m.id
`, matchID, messageID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("set last message: %w", err)
	}
	return true, nil
}

func (r *MatchRepo) MarkSeen(ctx context.Context, matchID, userID int64) (bool, error) {
	if r.pool == nil {
		return false, ErrPoolUnavailable
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE matches
SET is_new_match = FALSE
WHERE id = $1 AND (user_id = $2 OR matched_user_id = $2)
`, matchID, userID)
	if err != nil {
		return false, fmt.Errorf("mark match seen: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

const matchColumns = `id, user_id, matched_user_id, matched_at, last_message_id::text, is_new_match`

func scanMatch(row pgx.Row) (MatchRecord, error) {
	var rec MatchRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.MatchedUserID,
		&rec.MatchedAt,
		&rec.LastMessageID,
		&rec.IsNewMatch,
	)
	return rec, err
}

// rowPrefix scans leading columns into prefix before handing the rest to a shared scanner.
type rowPrefix struct {
	rows   pgx.Rows
	prefix []any
}

func (p rowPrefix) Scan(dest ...any) error {
	return p.rows.Scan(append(append([]any{}, p.prefix...), dest...)...)
}
