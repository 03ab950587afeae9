package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// LeaderboardStore backs `leaderboard` and `weekly_leaderboard_archive`
// (§3, §4.3 daily_bse_recalculation / weekly_challenges_and_reset).
type LeaderboardStore struct {
	db *Database
}

func NewLeaderboardStore(db *Database) *LeaderboardStore {
	return &LeaderboardStore{db: db}
}

// Current returns the existing leaderboard snapshot, used to diff
// previous_position against the freshly computed ranking.
func (s *LeaderboardStore) Current(ctx context.Context) ([]models.LeaderboardEntry, error) {
	query := `SELECT id, user_id, position, behavior_score, previous_position, position_change, created_at FROM leaderboard ORDER BY position ASC`
	rows, err := s.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Position, &e.BehaviorScore, &e.PreviousPosition, &e.PositionChange, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Replace atomically swaps the top-100 leaderboard for a freshly built set.
func (s *LeaderboardStore) Replace(ctx context.Context, entries []models.LeaderboardEntry) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM leaderboard`); err != nil {
			return err
		}
		for _, e := range entries {
			if e.ID == uuid.Nil {
				e.ID = uuid.New()
			}
			if e.CreatedAt.IsZero() {
				e.CreatedAt = time.Now().UTC()
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO leaderboard (id, user_id, position, behavior_score, previous_position, position_change, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, e.ID, e.UserID, e.Position, e.BehaviorScore, e.PreviousPosition, e.PositionChange, e.CreatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ArchiveWeekly copies the current leaderboard into
// weekly_leaderboard_archive — "full top-100 snapshot at reset time" per
// spec.md §9 open question 3.
func (s *LeaderboardStore) ArchiveWeekly(ctx context.Context, archivedAt time.Time) error {
	query := `
		INSERT INTO weekly_leaderboard_archive (id, user_id, position, behavior_score, archived_at)
		SELECT gen_random_uuid(), user_id, position, behavior_score, $1 FROM leaderboard
	`
	_, err := s.db.Pool.Exec(ctx, query, archivedAt)
	return err
}

// PruneOlderThan removes archive snapshots older than the retention window
// (4 weeks, §4.3 daily_bse_recalculation).
func (s *LeaderboardStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.Pool.Exec(ctx, `DELETE FROM weekly_leaderboard_archive WHERE archived_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
