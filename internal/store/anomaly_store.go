package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// AnomalyStore backs `detected_anomalies`. affected_users is a Postgres
// text[] column, bound through pq.Array the same way the teacher binds its
// array columns — pgx remains the driver, pq supplies only the helper.
type AnomalyStore struct {
	db *Database
}

func NewAnomalyStore(db *Database) *AnomalyStore {
	return &AnomalyStore{db: db}
}

func (s *AnomalyStore) Create(ctx context.Context, a *models.Anomaly) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = models.AnomalyStatusOpen
	}
	query := `
		INSERT INTO detected_anomalies (id, pattern_name, severity, affected_users, fingerprint_data, risk_score, detected_at, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Pool.Exec(ctx, query,
		a.ID, a.PatternName, a.Severity, pq.Array(a.AffectedUsers), a.FingerprintData, a.RiskScore, a.DetectedAt, a.Status, a.Description,
	)
	return err
}

// Since returns anomalies detected in (since, now] — used by SOL's hourly
// flagged-user detection job.
func (s *AnomalyStore) Since(ctx context.Context, since, now time.Time) ([]models.Anomaly, error) {
	query := `
		SELECT id, pattern_name, severity, affected_users, fingerprint_data, risk_score, detected_at, status, description
		FROM detected_anomalies
		WHERE detected_at > $1 AND detected_at <= $2
		ORDER BY detected_at ASC
	`
	rows, err := s.db.Pool.Query(ctx, query, since, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		if err := rows.Scan(&a.ID, &a.PatternName, &a.Severity, pq.Array(&a.AffectedUsers), &a.FingerprintData, &a.RiskScore, &a.DetectedAt, &a.Status, &a.Description); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
