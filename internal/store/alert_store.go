package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// AlertStore backs `admin_alerts`/`system_alerts` (§3 Alert, §4.3 hourly job).
type AlertStore struct {
	db *Database
}

func NewAlertStore(db *Database) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) Create(ctx context.Context, a *models.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = models.AlertStatusOpen
	}
	query := `
		INSERT INTO admin_alerts (id, alert_type, priority, summary, details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Pool.Exec(ctx, query, a.ID, a.AlertType, a.Priority, a.Summary, a.Details, a.Status, a.CreatedAt)
	return err
}

func (s *AlertStore) Open(ctx context.Context) ([]models.Alert, error) {
	query := `
		SELECT id, alert_type, priority, summary, details, status, created_at
		FROM admin_alerts WHERE status = $1 ORDER BY created_at DESC
	`
	rows, err := s.db.Pool.Query(ctx, query, models.AlertStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.AlertType, &a.Priority, &a.Summary, &a.Details, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
