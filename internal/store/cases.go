package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) InsertCase(ctx context.Context, item Case) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cases (id, name, owner_id, active)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Name, item.OwnerID, item.Active)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCase(ctx context.Context, caseID string) (Case, error) {
	var item Case
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner_id, active, document_count, total_size, created_at, updated_at
		FROM cases
		WHERE id=$1
	`, caseID).Scan(&item.ID, &item.Name, &item.OwnerID, &item.Active, &item.DocumentCount, &item.TotalSize, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Case{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListCasesOwnedBy(ctx context.Context, userID string) ([]Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, owner_id, active, document_count, total_size, created_at, updated_at
		FROM cases
		WHERE owner_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	items := make([]Case, 0)
	for rows.Next() {
		var item Case
		if err := rows.Scan(&item.ID, &item.Name, &item.OwnerID, &item.Active, &item.DocumentCount, &item.TotalSize, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetCaseActive(ctx context.Context, caseID string, active bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cases SET active=$2, updated_at=NOW() WHERE id=$1
	`, caseID, active)
	if err != nil {
		return fmt.Errorf("set case active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set case active rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AttachDocument links a document to a case and bumps the membership
// counters. Both rows are locked so the counters can never drift from
// the membership inside the transaction.
func (s *PostgresStore) AttachDocument(ctx context.Context, caseID, documentID string) (Case, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Case{}, fmt.Errorf("begin attach document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var item Case
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, owner_id, active, document_count, total_size, created_at, updated_at
		FROM cases WHERE id=$1 FOR UPDATE
	`, caseID).Scan(&item.ID, &item.Name, &item.OwnerID, &item.Active, &item.DocumentCount, &item.TotalSize, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Case{}, sql.ErrNoRows
		}
		return Case{}, fmt.Errorf("lock case: %w", err)
	}

	var currentCase *string
	var size int64
	err = tx.QueryRowContext(ctx, `
		SELECT case_id, OCTET_LENGTH(content) FROM documents WHERE id=$1 FOR UPDATE
	`, documentID).Scan(&currentCase, &size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Case{}, sql.ErrNoRows
		}
		return Case{}, fmt.Errorf("lock document: %w", err)
	}
	if currentCase != nil {
		return Case{}, ErrAlreadyAttached
	}
	if !item.Active {
		return Case{}, ErrCaseInactive
	}
	if item.DocumentCount >= MaxCaseDocuments || item.TotalSize+size > MaxCaseBytes {
		return Case{}, ErrCaseFull
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET case_id=$2, updated_at=NOW() WHERE id=$1
	`, documentID, caseID); err != nil {
		return Case{}, fmt.Errorf("attach document: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE cases
		SET document_count=document_count+1, total_size=total_size+$2, updated_at=NOW()
		WHERE id=$1
		RETURNING document_count, total_size
	`, caseID, size).Scan(&item.DocumentCount, &item.TotalSize)
	if err != nil {
		return Case{}, fmt.Errorf("increment case counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Case{}, fmt.Errorf("commit attach document: %w", err)
	}
	return item, nil
}

// DetachDocument removes a document from its case and decrements the
// counters, clamped at zero.
func (s *PostgresStore) DetachDocument(ctx context.Context, caseID, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin detach document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentCase *string
	var size int64
	err = tx.QueryRowContext(ctx, `
		SELECT case_id, OCTET_LENGTH(content) FROM documents WHERE id=$1 FOR UPDATE
	`, documentID).Scan(&currentCase, &size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock document: %w", err)
	}
	if currentCase == nil || *currentCase != caseID {
		return ErrNotAttached
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET case_id=NULL, updated_at=NOW() WHERE id=$1
	`, documentID); err != nil {
		return fmt.Errorf("detach document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE cases
		SET document_count=GREATEST(document_count-1, 0),
		    total_size=GREATEST(total_size-$2, 0),
		    updated_at=NOW()
		WHERE id=$1
	`, caseID, size); err != nil {
		return fmt.Errorf("decrement case counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit detach document: %w", err)
	}
	return nil
}

// ReconcileCase recomputes the counters from the member documents.
// Meant for a periodic job; normal operation keeps them incremental.
func (s *PostgresStore) ReconcileCase(ctx context.Context, caseID string) (Case, error) {
	var item Case
	err := s.db.QueryRowContext(ctx, `
		UPDATE cases c
		SET document_count=m.n, total_size=m.size, updated_at=NOW()
		FROM (
			SELECT COUNT(*) AS n, COALESCE(SUM(OCTET_LENGTH(content)), 0) AS size
			FROM documents WHERE case_id=$1
		) m
		WHERE c.id=$1
		RETURNING c.id, c.name, c.owner_id, c.active, c.document_count, c.total_size, c.created_at, c.updated_at
	`, caseID).Scan(&item.ID, &item.Name, &item.OwnerID, &item.Active, &item.DocumentCount, &item.TotalSize, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Case{}, err
	}
	return item, nil
}
