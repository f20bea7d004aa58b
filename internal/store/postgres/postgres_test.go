package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"caisse/backend/internal/store"
)

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("23505 must map to a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("40001 is not a unique violation")
	}
	if isUniqueViolation(errors.New("broken pipe")) {
		t.Fatalf("non-pg errors are not unique violations")
	}
}

func TestIsSerializationFailure(t *testing.T) {
	if !isSerializationFailure(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("40001 must be a serialization failure")
	}
	if !isSerializationFailure(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("40P01 must be a serialization failure")
	}
	// Wrapped errors still match.
	wrapped := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	if !isSerializationFailure(wrapped) {
		t.Fatalf("wrapped 40001 must be a serialization failure")
	}
	if isSerializationFailure(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("23505 is not a serialization failure")
	}
	if isSerializationFailure(errors.New("broken pipe")) {
		t.Fatalf("non-pg errors are not serialization failures")
	}
}

func TestRetrySerializableReplaysTransientLoss(t *testing.T) {
	calls := 0
	want := "ok"
	out, err := retrySerializable(func() (*string, error) {
		calls++
		if calls == 1 {
			return nil, &pgconn.PgError{Code: "40001"}
		}
		return &want, nil
	})
	if err != nil {
		t.Fatalf("retrySerializable: %v", err)
	}
	if out == nil || *out != want {
		t.Fatalf("result = %v, want %q", out, want)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestRetrySerializableGivesUpAsConflict(t *testing.T) {
	calls := 0
	_, err := retrySerializable(func() (*string, error) {
		calls++
		return nil, &pgconn.PgError{Code: "40001"}
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("exhausted retries: want ErrConflict, got %v", err)
	}
	if calls != txRetries {
		t.Fatalf("calls = %d, want %d", calls, txRetries)
	}
}

func TestRetrySerializablePassesThroughOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := retrySerializable(func() (*string, error) {
		calls++
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want the original error, got %v", err)
	}
	if errors.Is(err, store.ErrConflict) {
		t.Fatalf("non-serialization errors must not become conflicts")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}
