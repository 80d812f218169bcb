package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/tempwallets/txrelay/internal/storage"
)

func TestCreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateSubmission(ctx, storage.SubmissionRecord{
		AccountKey: "aptos:0xabc",
		Network:    "aptos",
		Status:     "constructed",
		Sequence:   5,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("id should be assigned")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	got, err := s.GetSubmission(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccountKey != "aptos:0xabc" || got.Sequence != 5 {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, err := s.GetSubmission(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.CreateSubmission(ctx, storage.SubmissionRecord{AccountKey: "aptos:0xabc", Status: "constructed"})
	if err != nil {
		t.Fatal(err)
	}

	created.Status = "submitted"
	created.TxHash = "0xdeadbeef"
	updated, err := s.UpdateSubmission(ctx, created)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != "submitted" || updated.TxHash != "0xdeadbeef" {
		t.Errorf("unexpected record %+v", updated)
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Error("creation time must be preserved")
	}

	_, err = s.UpdateSubmission(ctx, storage.SubmissionRecord{ID: "nope"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByAccount(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.CreateSubmission(ctx, storage.SubmissionRecord{AccountKey: "aptos:0xaaa"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.CreateSubmission(ctx, storage.SubmissionRecord{AccountKey: "aptos:0xbbb"}); err != nil {
		t.Fatal(err)
	}

	recs, err := s.ListSubmissionsByAccount(ctx, "aptos:0xaaa", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("expected 3 records, got %d", len(recs))
	}

	limited, err := s.ListSubmissionsByAccount(ctx, "aptos:0xaaa", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit should apply, got %d", len(limited))
	}
}
