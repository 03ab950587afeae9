package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// RiskFlagStore backs `user_risk_flags`, append-only (§3).
type RiskFlagStore struct {
	db *Database
}

func NewRiskFlagStore(db *Database) *RiskFlagStore {
	return &RiskFlagStore{db: db}
}

func (s *RiskFlagStore) Create(ctx context.Context, f *models.RiskFlag) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO user_risk_flags (id, user_id, flag, severity, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.Pool.Exec(ctx, query, f.ID, f.UserID, f.Flag, f.Severity, f.Timestamp, f.Metadata)
	return err
}

// CreateMany batches flag inserts for a single event's risk_flags list.
func (s *RiskFlagStore) CreateMany(ctx context.Context, userID string, flags []string, severity string, ts time.Time) error {
	for _, flag := range flags {
		if err := s.Create(ctx, &models.RiskFlag{UserID: userID, Flag: flag, Severity: severity, Timestamp: ts}); err != nil {
			return err
		}
	}
	return nil
}

// Since returns all flags raised in (since, now] — used by the hourly
// flagged-user detection job, bucketed by user and severity there.
func (s *RiskFlagStore) Since(ctx context.Context, since, now time.Time) ([]models.RiskFlag, error) {
	query := `
		SELECT id, user_id, flag, severity, timestamp, metadata
		FROM user_risk_flags
		WHERE timestamp > $1 AND timestamp <= $2
		ORDER BY timestamp ASC
	`
	rows, err := s.db.Pool.Query(ctx, query, since, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RiskFlag
	for rows.Next() {
		var f models.RiskFlag
		if err := rows.Scan(&f.ID, &f.UserID, &f.Flag, &f.Severity, &f.Timestamp, &f.Metadata); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
