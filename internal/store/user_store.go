package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserStore backs the `users` table (§6).
type UserStore struct {
	db *Database
}

func NewUserStore(db *Database) *UserStore {
	return &UserStore{db: db}
}

// GetByID loads a user row. Missing users surface as ErrUserNotFound so AGK
// and BSE can treat "no such user" as a first-class outcome rather than a
// generic database error.
func (s *UserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, behavior_score, weekly_score, is_verified, created_at, last_updated, metadata
		FROM users WHERE id = $1
	`
	u := &models.User{}
	err := s.db.Pool.QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.BehaviorScore, &u.WeeklyScore, &u.IsVerified, &u.CreatedAt, &u.LastUpdated, &u.Metadata,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// UpdateScore persists a new behavior_score + last_updated for a user, the
// write BSE performs after every successfully scored event. Callers must
// hold the per-user serialization lock (§5) before calling this.
func (s *UserStore) UpdateScore(ctx context.Context, userID string, score int, timestamp time.Time) error {
	query := `UPDATE users SET behavior_score = $2, last_updated = $3 WHERE id = $1`
	result, err := s.db.Pool.Exec(ctx, query, userID, score, timestamp)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateMetadata merges a passkey or other opaque field into user.metadata.
func (s *UserStore) UpdateMetadata(ctx context.Context, userID string, metadata models.JSONB) error {
	query := `UPDATE users SET metadata = $2 WHERE id = $1`
	_, err := s.db.Pool.Exec(ctx, query, userID, metadata)
	return err
}

// ResetWeeklyScores sets weekly_score = 0 for every user (weekly_challenges_and_reset).
func (s *UserStore) ResetWeeklyScores(ctx context.Context) (int64, error) {
	result, err := s.db.Pool.Exec(ctx, `UPDATE users SET weekly_score = 0`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListAll streams every user for the daily recalculation job. offset/limit
// let SOL page through large tables without loading them whole.
func (s *UserStore) ListAll(ctx context.Context, offset, limit int) ([]*models.User, error) {
	query := `
		SELECT id, behavior_score, weekly_score, is_verified, created_at, last_updated, metadata
		FROM users ORDER BY created_at ASC LIMIT $1 OFFSET $2
	`
	rows, err := s.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.BehaviorScore, &u.WeeklyScore, &u.IsVerified, &u.CreatedAt, &u.LastUpdated, &u.Metadata); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count returns the total number of users, used for the dashboard's user totals.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
