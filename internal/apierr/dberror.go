package apierr

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ClassifyDB maps a store-layer error onto the wire taxonomy (§4.4,§7).
// Connection failures become 502, auth failures 502, constraint/validation
// failures 400, unavailability 503, everything else a generic 500
// DATABASE_ERROR.
func ClassifyDB(err error) *APIError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(DatabaseConnectionErr, "database operation timed out")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return New(DatabaseConnectionErr, "database connection error")
		case strings.HasPrefix(pgErr.Code, "28"):
			return New(DatabaseAuthErr, "database authentication error")
		case strings.HasPrefix(pgErr.Code, "23"):
			return New(DatabaseValidationErr, "database constraint violation")
		case pgErr.Code == "57P03":
			return New(DatabaseUnavailable, "database unavailable")
		default:
			return New(DatabaseError, "database error")
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection reset"):
		return New(DatabaseConnectionErr, "database connection error")
	case strings.Contains(msg, "unavailable"):
		return New(DatabaseUnavailable, "database unavailable")
	default:
		return New(DatabaseError, "database error")
	}
}
