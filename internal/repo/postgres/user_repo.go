package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

type UserRecord struct {
	ID        int64
	Username  string
	FirstName string
	Age       int
	Gender    string
	Bio       string
	Photos    []string
	City      string
	Latitude  *float64
	Longitude *float64
	CreatedAt time.Time
}

type CredentialsRecord struct {
	UserID       int64
	Username     string
	PasswordHash string
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) FindCredentials(ctx context.Context, username string) (CredentialsRecord, error) {
	if r.pool == nil {
		return CredentialsRecord{}, ErrPoolUnavailable
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return CredentialsRecord{}, ErrUserNotFound
	}

	var rec CredentialsRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, username, password_hash
FROM users
WHERE username = $1
`, username).Scan(&rec.UserID, &rec.Username, &rec.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CredentialsRecord{}, ErrUserNotFound
		}
		return CredentialsRecord{}, fmt.Errorf("find user credentials: %w", err)
	}

	return rec, nil
}

func (r *UserRepo) GetByID(ctx context.Context, userID int64) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, ErrPoolUnavailable
	}
	if userID <= 0 {
		return UserRecord{}, ErrUserNotFound
	}

	rec, err := scanUser(r.pool.QueryRow(ctx, `
SELECT `+userColumns+`
FROM users u
WHERE u.id = $1
`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("get user: %w", err)
	}

	return rec, nil
}

// LockShared confirms the user exists inside tx and holds a FOR SHARE lock so
// the row cannot be deleted before the transaction ends.
func (r *UserRepo) LockShared(ctx context.Context, tx pgx.Tx, userID int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}

	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR SHARE`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lock user: %w", err)
	}
	return nil
}

const userColumns = `
	u.id,
	u.username,
	u.first_name,
	u.age,
	u.gender,
	u.bio,
	u.photos,
	u.city,
	u.latitude,
	u.longitude,
	u.created_at`

func scanUser(row pgx.Row, extra ...any) (UserRecord, error) {
	var rec UserRecord
	dest := []any{
		&rec.ID,
		&rec.Username,
		&rec.FirstName,
		&rec.Age,
		&rec.Gender,
		&rec.Bio,
		&rec.Photos,
		&rec.City,
		&rec.Latitude,
		&rec.Longitude,
		&rec.CreatedAt,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}
