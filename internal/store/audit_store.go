package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// AuditStore backs `audit_logs` and `access_logs`. Both are best-effort:
// callers log-and-continue on failure rather than fail the primary
// operation (supplemented from original_source/src/audit_logger.py, §12).
type AuditStore struct {
	db *Database
}

func NewAuditStore(db *Database) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Create(ctx context.Context, a *models.AuditLog) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO audit_logs (id, event_type, entity_id, entity_type, user_id, action, payload, ip_address, user_agent, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.Pool.Exec(ctx, query,
		a.ID, a.EventType, a.EntityID, a.EntityType, a.UserID, a.Action, a.Payload, a.IPAddress, a.UserAgent, a.RequestID, a.CreatedAt,
	)
	return err
}

// CreateBestEffort writes the audit row and only logs on failure, never
// returning an error to the caller — the idiom the webhook's BSE write and
// SOL job completion use. AGK decisions go through CreateAccessLog instead,
// which is best-effort in the same way.
func (s *AuditStore) CreateBestEffort(ctx context.Context, a *models.AuditLog) {
	if err := s.Create(ctx, a); err != nil {
		log.Error().Err(err).Str("event_type", a.EventType).Msg("failed to write audit log")
	}
}

func (s *AuditStore) CreateAccessLog(ctx context.Context, a *models.AccessLog) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO access_logs (id, user_id, granted, reason, access_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Pool.Exec(ctx, query, a.ID, a.UserID, a.Granted, a.Reason, a.AccessLevel, a.CreatedAt); err != nil {
		log.Error().Err(err).Str("user_id", a.UserID).Msg("failed to write access log")
	}
}
