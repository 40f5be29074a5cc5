package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AuditQuery narrows a trail listing. Zero values mean "no filter";
// Limit 0 falls back to the default page size.
type AuditQuery struct {
	Action string
	Since  time.Time
	Until  time.Time
	Limit  int
}

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

func (q AuditQuery) effectiveLimit() int {
	if q.Limit <= 0 {
		return defaultAuditLimit
	}
	if q.Limit > maxAuditLimit {
		return maxAuditLimit
	}
	return q.Limit
}

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (actor_id, action, document_id, case_id, workspace_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.ActorID, event.Action, event.DocumentID, event.CaseID, event.WorkspaceID, event.Detail)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditByDocument returns the document's trail newest first. Actor
// names and document titles are joined in for display; the joins are
// LEFT so events survive their referents being deleted.
func (s *PostgresStore) ListAuditByDocument(ctx context.Context, documentID string, q AuditQuery) ([]AuditEvent, error) {
	where := []string{"e.document_id=$1"}
	args := []any{documentID}
	return s.listAudit(ctx, where, args, q)
}

func (s *PostgresStore) ListAuditByActor(ctx context.Context, actorID string, q AuditQuery) ([]AuditEvent, error) {
	where := []string{"e.actor_id=$1"}
	args := []any{actorID}
	return s.listAudit(ctx, where, args, q)
}

// ListAuditSystem is the unscoped trail, for operator tooling.
func (s *PostgresStore) ListAuditSystem(ctx context.Context, q AuditQuery) ([]AuditEvent, error) {
	return s.listAudit(ctx, nil, nil, q)
}

func (s *PostgresStore) listAudit(ctx context.Context, where []string, args []any, q AuditQuery) ([]AuditEvent, error) {
	if q.Action != "" {
		args = append(args, q.Action)
		where = append(where, fmt.Sprintf("e.action=$%d", len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		where = append(where, fmt.Sprintf("e.created_at >= $%d", len(args)))
	}
	if !q.Until.IsZero() {
		args = append(args, q.Until)
		where = append(where, fmt.Sprintf("e.created_at <= $%d", len(args)))
	}

	query := `
		SELECT e.id, e.actor_id, e.action, e.document_id, e.case_id, e.workspace_id, e.detail, e.created_at,
		       u.display_name, d.title
		FROM audit_events e
		LEFT JOIN users u ON u.id = e.actor_id
		LEFT JOIN documents d ON d.id = e.document_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.effectiveLimit())
	query += fmt.Sprintf("\n\t\tORDER BY e.id DESC\n\t\tLIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	items := make([]AuditEvent, 0)
	for rows.Next() {
		var item AuditEvent
		if err := rows.Scan(
			&item.ID,
			&item.ActorID,
			&item.Action,
			&item.DocumentID,
			&item.CaseID,
			&item.WorkspaceID,
			&item.Detail,
			&item.CreatedAt,
			&item.ActorName,
			&item.DocumentTitle,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return items, nil
}
