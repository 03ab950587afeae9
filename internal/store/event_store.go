package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// EventStore backs the (implicit) events table. Events are immutable once
// written; there is no Update.
type EventStore struct {
	db *Database
}

func NewEventStore(db *Database) *EventStore {
	return &EventStore{db: db}
}

// Create persists an Event. Assigns ID/Timestamp if unset.
func (s *EventStore) Create(ctx context.Context, e *models.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO events (id, user_id, event_type, timestamp, metadata, source_ip, user_agent, device_fingerprint_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.Pool.Exec(ctx, query,
		e.ID, e.UserID, e.EventType, e.Timestamp, e.Metadata, e.SourceIP, e.UserAgent, e.DeviceFingerprintID,
	)
	return err
}

// RecentForUser returns up to limit events for userID within the given
// window ending at now, newest first — the UserContext.RecentActivity
// window BSE scores against (§4.1, last N in [50,200] over the previous 24h).
func (s *EventStore) RecentForUser(ctx context.Context, userID string, since, now time.Time, limit int) ([]models.Event, error) {
	query := `
		SELECT id, user_id, event_type, timestamp, metadata, source_ip, user_agent, device_fingerprint_id
		FROM events
		WHERE user_id = $1 AND timestamp > $2 AND timestamp <= $3
		ORDER BY timestamp DESC
		LIMIT $4
	`
	rows, err := s.db.Pool.Query(ctx, query, userID, since, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Timestamp, &e.Metadata, &e.SourceIP, &e.UserAgent, &e.DeviceFingerprintID); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByTypeSince counts events of a given type for a user strictly after
// `since` (half-open lower bound per §4.2 detection-correctness rule).
func (s *EventStore) CountByTypeSince(ctx context.Context, userID, eventType string, since, now time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM events WHERE user_id = $1 AND event_type = $2 AND timestamp > $3 AND timestamp <= $4`
	err := s.db.Pool.QueryRow(ctx, query, userID, eventType, since, now).Scan(&n)
	return n, err
}

// CountSince counts all events across all users in the given window, used
// by the webhook stats endpoint's 24h aggregate counters.
func (s *EventStore) CountSince(ctx context.Context, since, now time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM events WHERE timestamp > $1 AND timestamp <= $2`
	err := s.db.Pool.QueryRow(ctx, query, since, now).Scan(&n)
	return n, err
}
