package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRecordFailureTripsLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	until := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	mock.ExpectQuery("update identities").
		WithArgs("user-1", 3, until).
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts", "locked_until"}).AddRow(3, until))

	store := NewPGStore(db)
	attempts, lockedUntil, err := store.Identities(context.Background()).
		RecordFailure(context.Background(), "user-1", 3, until)
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if lockedUntil == nil || !lockedUntil.Equal(until) {
		t.Fatalf("lockedUntil = %v, want %v", lockedUntil, until)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRotateLostRaceRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	successor := &RefreshTokenRecord{
		ID:         "succ-1",
		IdentityID: "user-1",
		TokenHash:  "hash",
		IssuedAt:   now,
		ExpiresAt:  now.Add(24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("succ-1", "user-1", "hash", now, successor.ExpiresAt, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// The predecessor was already revoked by a concurrent rotation.
	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("pred-1", now, "succ-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	store := NewPGStore(db)
	err = store.RefreshTokens(context.Background()).
		Rotate(context.Background(), "pred-1", successor, now)
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRotateCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	successor := &RefreshTokenRecord{
		ID:         "succ-1",
		IdentityID: "user-1",
		TokenHash:  "hash",
		IssuedAt:   now,
		ExpiresAt:  now.Add(24 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("succ-1", "user-1", "hash", now, successor.ExpiresAt, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens set revoked_at").
		WithArgs("pred-1", now, "succ-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	if err := store.RefreshTokens(context.Background()).
		Rotate(context.Background(), "pred-1", successor, now); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFindIdentityNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select (.+) from identities where id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPGStore(db)
	_, err = store.Identities(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
