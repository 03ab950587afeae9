package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// FingerprintStore backs `fingerprint_data` — the MAF collector's sightings,
// retained at least 24h (§3).
type FingerprintStore struct {
	db *Database
}

func NewFingerprintStore(db *Database) *FingerprintStore {
	return &FingerprintStore{db: db}
}

func (s *FingerprintStore) Create(ctx context.Context, f *models.FingerprintRecord) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO fingerprint_data (id, user_id, event_type, ip, user_agent, device_hash, timestamp, confidence, geo, browser_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.Pool.Exec(ctx, query,
		f.ID, f.UserID, f.EventType, f.IP, f.UserAgent, f.DeviceHash, f.Timestamp, f.Confidence, f.Geo, f.BrowserDetails,
	)
	return err
}

// Window returns every FingerprintRecord in (since, now] — the snapshot MAF
// pattern detectors run against. The bound is strict/half-open per §4.2's
// detection-correctness rule: a record timestamped exactly `since` is
// excluded.
func (s *FingerprintStore) Window(ctx context.Context, since, now time.Time) ([]models.FingerprintRecord, error) {
	query := `
		SELECT id, user_id, event_type, ip, user_agent, device_hash, timestamp, confidence, geo, browser_details
		FROM fingerprint_data
		WHERE timestamp > $1 AND timestamp <= $2
		ORDER BY timestamp ASC
	`
	rows, err := s.db.Pool.Query(ctx, query, since, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.FingerprintRecord
	for rows.Next() {
		var f models.FingerprintRecord
		if err := rows.Scan(&f.ID, &f.UserID, &f.EventType, &f.IP, &f.UserAgent, &f.DeviceHash, &f.Timestamp, &f.Confidence, &f.Geo, &f.BrowserDetails); err != nil {
			return nil, err
		}
		records = append(records, f)
	}
	return records, rows.Err()
}

// WindowForUser narrows Window to a single user_id, used for per-user
// velocity metrics.
func (s *FingerprintStore) WindowForUser(ctx context.Context, userID string, since, now time.Time) ([]models.FingerprintRecord, error) {
	query := `
		SELECT id, user_id, event_type, ip, user_agent, device_hash, timestamp, confidence, geo, browser_details
		FROM fingerprint_data
		WHERE user_id = $1 AND timestamp > $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`
	rows, err := s.db.Pool.Query(ctx, query, userID, since, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.FingerprintRecord
	for rows.Next() {
		var f models.FingerprintRecord
		if err := rows.Scan(&f.ID, &f.UserID, &f.EventType, &f.IP, &f.UserAgent, &f.DeviceHash, &f.Timestamp, &f.Confidence, &f.Geo, &f.BrowserDetails); err != nil {
			return nil, err
		}
		records = append(records, f)
	}
	return records, rows.Err()
}
