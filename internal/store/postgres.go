package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, plan)
		VALUES ($1, LOWER($2), $3, $4, $5)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Plan)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, plan, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Plan, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, plan, created_at, updated_at
		FROM users
		WHERE email=LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Plan, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) SetUserPlan(ctx context.Context, userID, plan string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET plan=$2, updated_at=NOW() WHERE id=$1
	`, userID, plan)
	if err != nil {
		return fmt.Errorf("set user plan: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user plan rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) GetUserPlan(ctx context.Context, userID string) (string, error) {
	var plan string
	err := s.db.QueryRowContext(ctx, `SELECT plan FROM users WHERE id=$1`, userID).Scan(&plan)
	if err != nil {
		return "", err
	}
	return plan, nil
}

const documentColumns = `id, title, content, is_public, owner_id, case_id, share_token, version, updated_by, created_at, updated_at`

func scanDocument(row interface{ Scan(...any) error }) (Document, error) {
	var item Document
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Content,
		&item.IsPublic,
		&item.OwnerID,
		&item.CaseID,
		&item.ShareToken,
		&item.Version,
		&item.UpdatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// CreateDocument inserts the document at version 1 together with its
// initial snapshot, in one transaction.
func (s *PostgresStore) CreateDocument(ctx context.Context, item Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, is_public, owner_id, version, updated_by)
		VALUES ($1, $2, $3, $4, $5, 1, $5)
	`, item.ID, item.Title, item.Content, item.IsPublic, item.OwnerID); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO document_versions (document_id, version, content, author_id, change_note)
		VALUES ($1, 1, $2, $3, 'Initial version')
	`, item.ID, item.Content, item.OwnerID); err != nil {
		return fmt.Errorf("insert initial version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id=$1
	`, documentID)
	return scanDocument(row)
}

func (s *PostgresStore) GetDocumentByShareToken(ctx context.Context, token string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE share_token=$1
	`, token)
	return scanDocument(row)
}

// AppendVersion records a content revision: it locks the document row,
// writes the next snapshot, and patches content/version/updated fields,
// all in one transaction. Concurrent callers serialize on the row lock,
// which is what keeps version numbers contiguous.
func (s *PostgresStore) AppendVersion(ctx context.Context, documentID, content string, title *string, authorID, changeNote string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append version: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT version FROM documents WHERE id=$1 FOR UPDATE
	`, documentID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("lock document: %w", err)
	}
	next := current + 1

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO document_versions (document_id, version, content, author_id, change_note)
		VALUES ($1, $2, $3, $4, $5)
	`, documentID, next, content, authorID, changeNote); err != nil {
		return 0, fmt.Errorf("insert version %d: %w", next, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET content=$2, version=$3, title=COALESCE($4, title), updated_by=$5, updated_at=NOW()
		WHERE id=$1
	`, documentID, content, next, title, authorID); err != nil {
		return 0, fmt.Errorf("update document head: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append version: %w", err)
	}
	return next, nil
}

// UpdateDocumentTitle renames without creating a version; titles are
// not part of the snapshot history.
func (s *PostgresStore) UpdateDocumentTitle(ctx context.Context, documentID, title, updatedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title=$2, updated_by=$3, updated_at=NOW()
		WHERE id=$1
	`, documentID, title, updatedBy)
	if err != nil {
		return fmt.Errorf("update document title: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document title rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetShareToken(ctx context.Context, documentID, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET share_token=$2, is_public=TRUE, updated_at=NOW()
		WHERE id=$1
	`, documentID, token)
	if err != nil {
		return fmt.Errorf("set share token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set share token rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDocument purges the document with its versions and grants in
// one transaction. If the document belongs to a case the membership
// counters are decremented in the same transaction, so they stay equal
// to the sum over remaining members.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var caseID *string
	var size int64
	err = tx.QueryRowContext(ctx, `
		SELECT case_id, OCTET_LENGTH(content) FROM documents WHERE id=$1 FOR UPDATE
	`, documentID).Scan(&caseID, &size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock document for delete: %w", err)
	}

	if caseID != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cases
			SET document_count=GREATEST(document_count-1, 0),
			    total_size=GREATEST(total_size-$2, 0),
			    updated_at=NOW()
			WHERE id=$1
		`, *caseID, size); err != nil {
			return fmt.Errorf("decrement case counters: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_versions WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("delete versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM permission_grants WHERE document_id=$1`, documentID); err != nil {
		return fmt.Errorf("delete grants: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDocumentsOwnedBy(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list owned documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListDocumentsSharedWith(ctx context.Context, userID string) ([]SharedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.content, d.is_public, d.owner_id, d.case_id, d.share_token, d.version, d.updated_by, d.created_at, d.updated_at, g.role
		FROM permission_grants g
		JOIN documents d ON d.id = g.document_id
		WHERE g.user_id=$1
		ORDER BY d.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared documents: %w", err)
	}
	defer rows.Close()

	items := make([]SharedDocument, 0)
	for rows.Next() {
		var item SharedDocument
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.Content,
			&item.IsPublic,
			&item.OwnerID,
			&item.CaseID,
			&item.ShareToken,
			&item.Version,
			&item.UpdatedBy,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.GrantedRole,
		); err != nil {
			return nil, fmt.Errorf("scan shared document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetVersion(ctx context.Context, documentID string, version int) (DocumentVersion, error) {
	var item DocumentVersion
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, version, content, author_id, change_note, created_at
		FROM document_versions
		WHERE document_id=$1 AND version=$2
	`, documentID, version).Scan(
		&item.DocumentID,
		&item.Version,
		&item.Content,
		&item.AuthorID,
		&item.ChangeNote,
		&item.CreatedAt,
	)
	if err != nil {
		return DocumentVersion{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, version, content, author_id, change_note, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		var item DocumentVersion
		if err := rows.Scan(
			&item.DocumentID,
			&item.Version,
			&item.Content,
			&item.AuthorID,
			&item.ChangeNote,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

// UpsertGrant is idempotent per (document, user): a repeated grant
// overwrites role, granter, and grant time.
func (s *PostgresStore) UpsertGrant(ctx context.Context, grant PermissionGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_grants (document_id, user_id, role, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (document_id, user_id)
		DO UPDATE SET role=EXCLUDED.role, granted_by=EXCLUDED.granted_by, granted_at=NOW()
	`, grant.DocumentID, grant.UserID, grant.Role, grant.GrantedBy)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGrant(ctx context.Context, documentID, userID string) (PermissionGrant, error) {
	var item PermissionGrant
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, user_id, role, granted_by, granted_at
		FROM permission_grants
		WHERE document_id=$1 AND user_id=$2
	`, documentID, userID).Scan(&item.DocumentID, &item.UserID, &item.Role, &item.GrantedBy, &item.GrantedAt)
	if err != nil {
		return PermissionGrant{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListGrantsForDocument(ctx context.Context, documentID string) ([]PermissionGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, user_id, role, granted_by, granted_at
		FROM permission_grants
		WHERE document_id=$1
		ORDER BY granted_at ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	items := make([]PermissionGrant, 0)
	for rows.Next() {
		var item PermissionGrant
		if err := rows.Scan(&item.DocumentID, &item.UserID, &item.Role, &item.GrantedBy, &item.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteGrant(ctx context.Context, documentID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM permission_grants WHERE document_id=$1 AND user_id=$2
	`, documentID, userID)
	if err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete grant rows: %w", err)
	}
	return affected > 0, nil
}
