package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("PAPERBASE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("PAPERBASE_TEST_DATABASE_URL is not set")
	}
	return dsn
}

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, getTestDatabaseURL(t), 4)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

// TestAppendVersionStaysContiguous verifies the row lock in AppendVersion
// keeps version numbers dense even when writers race.
func TestAppendVersionStaysContiguous(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	s := openTestStore(t)

	user := User{ID: "user_vtest", Email: "vtest@example.com", DisplayName: "Vtest", PasswordHash: "x", Plan: "free"}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.DB().ExecContext(ctx, `DELETE FROM users WHERE id = $1`, user.ID)
	})

	doc := Document{ID: "doc_vtest", Title: "Contiguity", Content: "v1", OwnerID: user.ID}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	t.Cleanup(func() { _ = s.DeleteDocument(ctx, doc.ID) })

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			content := strings.Repeat("x", i+1)
			if _, err := s.AppendVersion(ctx, doc.ID, content, nil, user.ID, "racing edit"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append version: %v", err)
	}

	versions, err := s.ListVersions(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != writers+1 {
		t.Fatalf("expected %d versions, got %d", writers+1, len(versions))
	}
	// Newest first, dense from writers+1 down to 1.
	for i, snapshot := range versions {
		if want := writers + 1 - i; snapshot.Version != want {
			t.Fatalf("expected version %d at index %d, got %d", want, i, snapshot.Version)
		}
	}

	head, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if head.Version != writers+1 {
		t.Fatalf("head version must match the ledger, got %d", head.Version)
	}
}
