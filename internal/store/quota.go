package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// usageColumns maps feature keys onto real columns. Increment builds
// SQL from this map, never from caller input.
var usageColumns = map[string]string{
	"ai_questions":      "ai_questions",
	"tasks_created":     "tasks_created",
	"documents_created": "documents_created",
	"pdf_exports":       "pdf_exports",
	"calendar_events":   "calendar_events",
	"file_uploads":      "file_uploads",
}

// GetUsageCounter returns the counter row for the user and month
// ("2006-01"). A missing row reads as all zeroes: counters only exist
// once something was consumed.
func (s *PostgresStore) GetUsageCounter(ctx context.Context, userID, month string) (UsageCounter, error) {
	var item UsageCounter
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, month, ai_questions, tasks_created, documents_created, pdf_exports, calendar_events, file_uploads, updated_at
		FROM usage_counters
		WHERE user_id=$1 AND month=$2
	`, userID, month).Scan(
		&item.UserID,
		&item.Month,
		&item.AIQuestions,
		&item.TasksCreated,
		&item.DocumentsCreated,
		&item.PDFExports,
		&item.CalendarEvents,
		&item.FileUploads,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return UsageCounter{UserID: userID, Month: month}, nil
	}
	if err != nil {
		return UsageCounter{}, fmt.Errorf("get usage counter: %w", err)
	}
	return item, nil
}

// IncrementUsage bumps one feature counter for the month by n,
// creating the row on first use.
func (s *PostgresStore) IncrementUsage(ctx context.Context, userID, month, feature string, n int) error {
	column, ok := usageColumns[feature]
	if !ok {
		return fmt.Errorf("unknown usage feature %q", feature)
	}
	if n <= 0 {
		n = 1
	}
	query := fmt.Sprintf(`
		INSERT INTO usage_counters (user_id, month, %s)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, month)
		DO UPDATE SET %s = usage_counters.%s + $3, updated_at=NOW()
	`, column, column, column)
	if _, err := s.db.ExecContext(ctx, query, userID, month, n); err != nil {
		return fmt.Errorf("increment %s: %w", feature, err)
	}
	return nil
}
