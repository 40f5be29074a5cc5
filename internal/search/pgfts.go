package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback. It queries the generated search_vector column directly.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery against the document search vector with
// ts_headline snippets, ranked by ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ctx := context.Background()

	// The stored search_vector spans both fields; a field-restricted
	// query matches against that field alone.
	vector := "search_vector"
	switch q.Field {
	case "title":
		vector = "to_tsvector('english', title)"
	case "content":
		vector = "to_tsvector('english', content)"
	}

	var total int
	err := p.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT count(*)
		FROM documents
		WHERE %s @@ plainto_tsquery('english', $1)
	`, vector), q.Text).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title,
			ts_headline('english', content, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			owner_id, is_public
		FROM documents
		WHERE %s @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(%s, plainto_tsquery('english', $1)) DESC
		LIMIT $2 OFFSET $3
	`, vector, vector), q.Text, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.OwnerID, &r.IsPublic); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every document for reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content, owner_id, is_public FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("load documents for reindex: %w", err)
	}
	defer rows.Close()

	records := make([]DocumentRecord, 0)
	for rows.Next() {
		var record DocumentRecord
		if err := rows.Scan(&record.ID, &record.Title, &record.Content, &record.OwnerID, &record.IsPublic); err != nil {
			return nil, fmt.Errorf("scan reindex record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reindex records: %w", err)
	}
	return records, nil
}
