package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// JobLogStore backs `logs_scheduled_jobs` (§4.3).
type JobLogStore struct {
	db *Database
}

func NewJobLogStore(db *Database) *JobLogStore {
	return &JobLogStore{db: db}
}

func (s *JobLogStore) Create(ctx context.Context, j *models.JobLog) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Timestamp.IsZero() {
		j.Timestamp = time.Now().UTC()
	}
	query := `
		INSERT INTO logs_scheduled_jobs (id, job_name, timestamp, status, error, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.Pool.Exec(ctx, query, j.ID, j.JobName, j.Timestamp, j.Status, j.Error, j.Metadata)
	return err
}

// LastRun returns the most recent JobLog row for a job. The SOL scheduler's
// overlap check (§5 cancellation & timeouts) does not read it; it tracks
// running jobs in memory.
func (s *JobLogStore) LastRun(ctx context.Context, jobName string) (*models.JobLog, error) {
	query := `
		SELECT id, job_name, timestamp, status, error, metadata
		FROM logs_scheduled_jobs WHERE job_name = $1 ORDER BY timestamp DESC LIMIT 1
	`
	j := &models.JobLog{}
	err := s.db.Pool.QueryRow(ctx, query, jobName).Scan(&j.ID, &j.JobName, &j.Timestamp, &j.Status, &j.Error, &j.Metadata)
	if err != nil {
		return nil, err
	}
	return j, nil
}
