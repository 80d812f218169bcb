// Package postgres implements the submission store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tempwallets/txrelay/internal/storage"
)

// Store implements storage.SubmissionStore backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.SubmissionStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSubmission(ctx context.Context, rec storage.SubmissionRecord) (storage.SubmissionRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_submissions (id, account_key, network, status, tx_hash, sequence, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.AccountKey, rec.Network, rec.Status, rec.TxHash, rec.Sequence, rec.Error, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return storage.SubmissionRecord{}, err
	}
	return rec, nil
}

func (s *Store) UpdateSubmission(ctx context.Context, rec storage.SubmissionRecord) (storage.SubmissionRecord, error) {
	rec.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE relay_submissions
		SET status = $2, tx_hash = $3, error = $4, updated_at = $5
		WHERE id = $1
	`, rec.ID, rec.Status, rec.TxHash, rec.Error, rec.UpdatedAt)
	if err != nil {
		return storage.SubmissionRecord{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.SubmissionRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (storage.SubmissionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_key, network, status, tx_hash, sequence, error, created_at, updated_at
		FROM relay_submissions
		WHERE id = $1
	`, id)

	var rec storage.SubmissionRecord
	err := row.Scan(&rec.ID, &rec.AccountKey, &rec.Network, &rec.Status, &rec.TxHash, &rec.Sequence, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SubmissionRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SubmissionRecord{}, err
	}
	return rec, nil
}

func (s *Store) ListSubmissionsByAccount(ctx context.Context, accountKey string, limit int) ([]storage.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_key, network, status, tx_hash, sequence, error, created_at, updated_at
		FROM relay_submissions
		WHERE account_key = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.SubmissionRecord
	for rows.Next() {
		var rec storage.SubmissionRecord
		if err := rows.Scan(&rec.ID, &rec.AccountKey, &rec.Network, &rec.Status, &rec.TxHash, &rec.Sequence, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
