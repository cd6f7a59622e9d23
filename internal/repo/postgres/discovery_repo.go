package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
)

type DiscoveryRepo struct {
	pool *pgxpool.Pool
}

// CandidateQuery narrows the candidate pool before exact distance filtering.
// Bound holds longitude on X and latitude on Y. When FilterLongitude is false
// only the latitude band of Bound is applied.
type CandidateQuery struct {
	RequesterID     int64
	AgeMin          int
	AgeMax          int
	Bound           orb.Bound
	FilterLongitude bool
}

func NewDiscoveryRepo(pool *pgxpool.Pool) *DiscoveryRepo {
	return &DiscoveryRepo{pool: pool}
}

// ListCandidates returns located, visible users in the age range that the
// requester has neither liked nor matched with. Order is unspecified.
func (r *DiscoveryRepo) ListCandidates(ctx context.Context, q CandidateQuery) ([]UserRecord, error) {
	if r.pool == nil {
		return nil, ErrPoolUnavailable
	}
	if q.RequesterID <= 0 {
		return nil, fmt.Errorf("invalid requester id")
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+userColumns+`
FROM users u
JOIN user_settings us ON us.user_id = u.id
WHERE u.id <> $1
	AND u.age BETWEEN $2 AND $3
	AND u.latitude IS NOT NULL
	AND u.longitude IS NOT NULL
	AND us.show_me_in_discovery = TRUE
	AND us.is_paused = FALSE
	AND u.latitude BETWEEN $4 AND $5
	AND ($8::boolean = FALSE OR u.longitude BETWEEN $6 AND $7)
	AND NOT EXISTS (
		SELECT 1 FROM likes l
		WHERE l.from_user_id = $1 AND l.to_user_id = u.id
	)
	AND NOT EXISTS (
		SELECT 1 FROM matches m
		WHERE m.user_low = LEAST($1::bigint, u.id) AND m.user_high = GREATEST($1::bigint, u.id)
	)
`,
		q.RequesterID,
		q.AgeMin,
		q.AgeMax,
		q.Bound.Min.Lat(),
		q.Bound.Max.Lat(),
		q.Bound.Min.Lon(),
		q.Bound.Max.Lon(),
		q.FilterLongitude,
	)
	if err != nil {
		return nil, fmt.Errorf("list discovery candidates: %w", err)
	}
	defer rows.Close()

	items := make([]UserRecord, 0)
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan discovery candidate: %w", err)
		}
		items = append(items, rec)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate discovery candidates: %w", rows.Err())
	}

	return items, nil
}
