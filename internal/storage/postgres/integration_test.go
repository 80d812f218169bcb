//go:build integration && postgres

package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/tempwallets/txrelay/internal/storage"
)

// Integration test against a real Postgres with the relay_submissions table
// applied.
func TestIntegrationSubmissionLifecycle(t *testing.T) {
	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	s := New(db)

	created, err := s.CreateSubmission(ctx, storage.SubmissionRecord{
		AccountKey: "aptos:0xintegration",
		Network:    "aptos",
		Status:     "constructed",
		Sequence:   1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM relay_submissions WHERE id = $1", created.ID)
	})

	created.Status = "submitted"
	created.TxHash = "0xtest"
	if _, err := s.UpdateSubmission(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.GetSubmission(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "submitted" || got.TxHash != "0xtest" {
		t.Errorf("unexpected record %+v", got)
	}
}
