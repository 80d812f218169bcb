package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tempwallets/txrelay/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestCreateSubmission(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO relay_submissions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := s.CreateSubmission(context.Background(), storage.SubmissionRecord{
		AccountKey: "aptos:0xabc",
		Network:    "aptos",
		Status:     "constructed",
		Sequence:   5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" {
		t.Error("id should be assigned")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("created_at should be set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSubmission(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE relay_submissions").
		WithArgs("id-1", "submitted", "0xtx", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := s.UpdateSubmission(context.Background(), storage.SubmissionRecord{
		ID:     "id-1",
		Status: "submitted",
		TxHash: "0xtx",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Status != "submitted" {
		t.Errorf("status %q", rec.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateSubmissionMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE relay_submissions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.UpdateSubmission(context.Background(), storage.SubmissionRecord{ID: "nope"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetSubmission(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "account_key", "network", "status", "tx_hash", "sequence", "error", "created_at", "updated_at"}).
		AddRow("id-1", "aptos:0xabc", "aptos", "in_block", "0xtx", 5, "", now, now)
	mock.ExpectQuery("SELECT (.+) FROM relay_submissions").
		WithArgs("id-1").
		WillReturnRows(rows)

	rec, err := s.GetSubmission(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != "in_block" || rec.Sequence != 5 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestGetSubmissionMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM relay_submissions").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetSubmission(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSubmissionsByAccount(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "account_key", "network", "status", "tx_hash", "sequence", "error", "created_at", "updated_at"}).
		AddRow("id-2", "aptos:0xabc", "aptos", "submitted", "0xtx2", 6, "", now, now).
		AddRow("id-1", "aptos:0xabc", "aptos", "in_block", "0xtx1", 5, "", now.Add(-time.Minute), now)
	mock.ExpectQuery("SELECT (.+) FROM relay_submissions").
		WithArgs("aptos:0xabc", 100).
		WillReturnRows(rows)

	recs, err := s.ListSubmissionsByAccount(context.Background(), "aptos:0xabc", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID != "id-2" {
		t.Errorf("newest first, got %s", recs[0].ID)
	}
}
