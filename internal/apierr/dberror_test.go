package apierr

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyDB_Nil(t *testing.T) {
	if got := ClassifyDB(nil); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestClassifyDB_DeadlineExceeded(t *testing.T) {
	got := ClassifyDB(context.DeadlineExceeded)
	if got.Code != DatabaseConnectionErr {
		t.Errorf("Code = %v, want %v", got.Code, DatabaseConnectionErr)
	}
}

func TestClassifyDB_PgErrorCodes(t *testing.T) {
	cases := []struct {
		pgCode string
		want   Code
	}{
		{"08006", DatabaseConnectionErr},
		{"28000", DatabaseAuthErr},
		{"23505", DatabaseValidationErr},
		{"57P03", DatabaseUnavailable},
		{"99999", DatabaseError},
	}
	for _, c := range cases {
		err := &pgconn.PgError{Code: c.pgCode}
		got := ClassifyDB(err)
		if got.Code != c.want {
			t.Errorf("ClassifyDB(code=%s) = %v, want %v", c.pgCode, got.Code, c.want)
		}
	}
}

func TestClassifyDB_GenericConnectionErrors(t *testing.T) {
	if got := ClassifyDB(errors.New("dial tcp: connection refused")); got.Code != DatabaseConnectionErr {
		t.Errorf("Code = %v, want %v", got.Code, DatabaseConnectionErr)
	}
	if got := ClassifyDB(errors.New("service unavailable")); got.Code != DatabaseUnavailable {
		t.Errorf("Code = %v, want %v", got.Code, DatabaseUnavailable)
	}
	if got := ClassifyDB(errors.New("something else entirely")); got.Code != DatabaseError {
		t.Errorf("Code = %v, want %v", got.Code, DatabaseError)
	}
}

func TestAPIError_WithDetailsAndStatus(t *testing.T) {
	e := New(ValidationError, "bad input").WithDetails([]string{"a", "b"}).WithStatus(422)
	if e.Status != 422 {
		t.Errorf("Status = %d, want 422", e.Status)
	}
	if len(e.Details) != 2 {
		t.Errorf("Details = %v", e.Details)
	}
	env := e.ToEnvelope()
	if env.Status != "error" || env.Code != ValidationError {
		t.Errorf("envelope = %+v", env)
	}
}
