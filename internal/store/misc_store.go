package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// MiscStore groups the smaller supporting tables named in §6 that don't
// warrant their own file: bot_detections, bot_detection_tests,
// fake_referral_detections, skipped_payloads, token_usage_history,
// user_api_costs, system_configs.
type MiscStore struct {
	db *Database
}

func NewMiscStore(db *Database) *MiscStore {
	return &MiscStore{db: db}
}

func (s *MiscStore) CreateBotDetection(ctx context.Context, b *models.BotDetection) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO bot_detections (id, user_id, probability, signals, blocked, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.db.Pool.Exec(ctx, query, b.ID, b.UserID, b.Probability, pq.Array(b.Signals), b.Blocked, b.CreatedAt)
	return err
}

func (s *MiscStore) CreateFakeReferralDetection(ctx context.Context, f *models.FakeReferralDetection) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO fake_referral_detections (id, user_id, signals, blocked, created_at) VALUES ($1,$2,$3,$4,$5)`
	_, err := s.db.Pool.Exec(ctx, query, f.ID, f.UserID, pq.Array(f.Signals), f.Blocked, f.CreatedAt)
	return err
}

// RecordTokenUsage is inert plumbing for an external meme-generation
// service's cost accounting (§12) — no caller in the core scoring path.
func (s *MiscStore) RecordTokenUsage(ctx context.Context, userID, feature string, tokens int) error {
	query := `INSERT INTO token_usage_history (id, user_id, feature, tokens, created_at) VALUES ($1,$2,$3,$4,$5)`
	_, err := s.db.Pool.Exec(ctx, query, uuid.New(), userID, feature, tokens, time.Now().UTC())
	return err
}

// SkippedPayload records a payload that failed MAF processing (dead-letter
// path, §12); cmd/maf-worker calls it when pattern evaluation returns an
// error.
func (s *MiscStore) SkippedPayload(ctx context.Context, payload models.JSONB, reason string) error {
	query := `INSERT INTO skipped_payloads (id, payload, reason, created_at) VALUES ($1,$2,$3,$4)`
	_, err := s.db.Pool.Exec(ctx, query, uuid.New(), payload, reason, time.Now().UTC())
	return err
}

// CountBotDetectionsSince counts bot_detections rows in a window, split by
// blocked/allowed, for the webhook stats endpoint.
func (s *MiscStore) CountBotDetectionsSince(ctx context.Context, since, now time.Time) (total, blocked int, err error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE blocked) FROM bot_detections WHERE created_at > $1 AND created_at <= $2`
	err = s.db.Pool.QueryRow(ctx, query, since, now).Scan(&total, &blocked)
	return total, blocked, err
}

// CountFakeReferralDetectionsSince counts fake_referral_detections rows in a
// window, split by blocked/allowed, for the webhook stats endpoint.
func (s *MiscStore) CountFakeReferralDetectionsSince(ctx context.Context, since, now time.Time) (total, blocked int, err error) {
	query := `SELECT COUNT(*), COUNT(*) FILTER (WHERE blocked) FROM fake_referral_detections WHERE created_at > $1 AND created_at <= $2`
	err = s.db.Pool.QueryRow(ctx, query, since, now).Scan(&total, &blocked)
	return total, blocked, err
}

// GetSystemConfig reads a single key from system_configs, used sparingly —
// most configuration is environment-driven (§10.3); this table backs
// operator-tunable knobs the dashboard can surface without a restart.
func (s *MiscStore) GetSystemConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.Pool.QueryRow(ctx, `SELECT value FROM system_configs WHERE key = $1`, key).Scan(&value)
	return value, err
}
