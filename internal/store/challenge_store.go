package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// ChallengeStore backs `weekly_challenges` (§4.3 weekly_challenges_and_reset).
type ChallengeStore struct {
	db *Database
}

func NewChallengeStore(db *Database) *ChallengeStore {
	return &ChallengeStore{db: db}
}

func (s *ChallengeStore) CreateMany(ctx context.Context, challenges []models.Challenge) error {
	for _, c := range challenges {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		query := `
			INSERT INTO weekly_challenges (id, type, description, start_date, end_date, reward_points, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := s.db.Pool.Exec(ctx, query, c.ID, c.Type, c.Description, c.StartDate, c.EndDate, c.RewardPoints, c.Active); err != nil {
			return err
		}
	}
	return nil
}

// ExpireBefore deactivates challenges whose end_date has passed.
func (s *ChallengeStore) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.Pool.Exec(ctx, `UPDATE weekly_challenges SET active = false WHERE active = true AND end_date < $1`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (s *ChallengeStore) Active(ctx context.Context, now time.Time) ([]models.Challenge, error) {
	query := `
		SELECT id, type, description, start_date, end_date, reward_points, active
		FROM weekly_challenges WHERE active = true AND start_date <= $1 AND end_date >= $1
	`
	rows, err := s.db.Pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Challenge
	for rows.Next() {
		var c models.Challenge
		if err := rows.Scan(&c.ID, &c.Type, &c.Description, &c.StartDate, &c.EndDate, &c.RewardPoints, &c.Active); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
