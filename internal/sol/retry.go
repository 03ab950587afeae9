// Package sol implements the Scheduled Operations Layer (§4.3): three
// wall-clock-triggered jobs run by a single cooperative scheduler,
// each logged as a JobLog row.
package sol

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// withRetry runs fn up to attempts times with exponential backoff from
// base, the shared retry discipline every SOL database operation uses
// (§4.3 Retry discipline).
func withRetry(ctx context.Context, attempts int, base time.Duration, jobName string, fn func() error) error {
	if attempts <= 0 {
		attempts = 3
	}
	if base <= 0 {
		base = 5 * time.Second
	}

	delay := base
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Warn().Err(err).Str("job", jobName).Int("attempt", i).Msg("sol: operation failed, retrying")
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
