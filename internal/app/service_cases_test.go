package app

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"paperbase/api/internal/store"
)

func mustCreateCase(t *testing.T, svc *Service, caller Session, name string) store.Case {
	t.Helper()
	item, err := svc.CreateCase(context.Background(), caller, name)
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	return item
}

func TestAttachAndDetachTracksCounters(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	item := mustCreateCase(t, svc, owner, "Research")
	doc := mustCreate(t, svc, owner, "Notes", false)

	ctx := context.Background()
	updated, err := svc.AttachToCase(ctx, owner, item.ID, doc.ID)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if updated.DocumentCount != 1 {
		t.Fatalf("expected 1 document, got %d", updated.DocumentCount)
	}
	if updated.TotalSize != int64(len("first draft")) {
		t.Fatalf("size counter off: %d", updated.TotalSize)
	}

	if err := svc.DetachFromCase(ctx, owner, item.ID, doc.ID); err != nil {
		t.Fatalf("detach: %v", err)
	}
	after, err := svc.GetCase(ctx, owner, item.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if after.DocumentCount != 0 || after.TotalSize != 0 {
		t.Fatalf("counters must return to zero, got %d/%d", after.DocumentCount, after.TotalSize)
	}
}

func TestAttachRejectsSecondCase(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	first := mustCreateCase(t, svc, owner, "First")
	second := mustCreateCase(t, svc, owner, "Second")
	doc := mustCreate(t, svc, owner, "Notes", false)

	ctx := context.Background()
	if _, err := svc.AttachToCase(ctx, owner, first.ID, doc.ID); err != nil {
		t.Fatalf("attach: %v", err)
	}
	_, err := svc.AttachToCase(ctx, owner, second.ID, doc.ID)
	if code := domainCode(t, err); code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %s", code)
	}
}

func TestAttachRejectsClosedCase(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	item := mustCreateCase(t, svc, owner, "Closed")
	doc := mustCreate(t, svc, owner, "Notes", false)

	ctx := context.Background()
	if err := svc.SetCaseActive(ctx, owner, item.ID, false); err != nil {
		t.Fatalf("close case: %v", err)
	}
	_, err := svc.AttachToCase(ctx, owner, item.ID, doc.ID)
	if code := domainCode(t, err); code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %s", code)
	}
}

func TestAttachRejectsFullCase(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	item := mustCreateCase(t, svc, owner, "Crowded")

	ctx := context.Background()
	for i := 0; i < store.MaxCaseDocuments; i++ {
		doc := mustCreate(t, svc, owner, fmt.Sprintf("Doc %d", i), false)
		if _, err := svc.AttachToCase(ctx, owner, item.ID, doc.ID); err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}

	extra := mustCreate(t, svc, owner, "One more", false)
	_, err := svc.AttachToCase(ctx, owner, item.ID, extra.ID)
	if code := domainCode(t, err); code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE at the document cap, got %s", code)
	}
}

func TestAttachRejectsOversizedCase(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	item := mustCreateCase(t, svc, owner, "Heavy")

	ctx := context.Background()
	big, err := svc.Create(ctx, owner, CreateDocumentInput{
		Title:   "Big",
		Content: strings.Repeat("x", 1024),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Pretend the case already sits just under the byte cap.
	stored := mem.cases[item.ID]
	stored.TotalSize = store.MaxCaseBytes - 100
	mem.cases[item.ID] = stored

	_, err = svc.AttachToCase(ctx, owner, item.ID, big.ID)
	if code := domainCode(t, err); code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE at the byte cap, got %s", code)
	}
}

func TestDetachRequiresMembership(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	item := mustCreateCase(t, svc, owner, "Research")
	doc := mustCreate(t, svc, owner, "Loose", false)

	err := svc.DetachFromCase(context.Background(), owner, item.ID, doc.ID)
	if code := domainCode(t, err); code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %s", code)
	}
}

func TestCaseOwnershipHidesExistence(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	stranger := seedUser(t, mem, "mallory", "free")
	item := mustCreateCase(t, svc, owner, "Secret")

	_, err := svc.GetCase(context.Background(), stranger, item.ID)
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Fatalf("foreign case must read as absent, got %s", code)
	}
}

func TestReconcileCaseRecounts(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	item := mustCreateCase(t, svc, owner, "Research")
	doc := mustCreate(t, svc, owner, "Notes", false)

	ctx := context.Background()
	if _, err := svc.AttachToCase(ctx, owner, item.ID, doc.ID); err != nil {
		t.Fatalf("attach: %v", err)
	}
	// Skew the counters as if a past bug drifted them.
	stored := mem.cases[item.ID]
	stored.DocumentCount = 9
	stored.TotalSize = 1 << 20
	mem.cases[item.ID] = stored

	fixed, err := svc.ReconcileCase(ctx, owner, item.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if fixed.DocumentCount != 1 || fixed.TotalSize != int64(len(doc.Content)) {
		t.Fatalf("reconcile mismatch: %d/%d", fixed.DocumentCount, fixed.TotalSize)
	}
}

func TestDeleteDocumentReleasesCaseBudget(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	owner := seedUser(t, mem, "alice", "pro")
	item := mustCreateCase(t, svc, owner, "Research")
	doc := mustCreate(t, svc, owner, "Notes", false)

	ctx := context.Background()
	if _, err := svc.AttachToCase(ctx, owner, item.ID, doc.ID); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := svc.Delete(ctx, owner, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	after, err := svc.GetCase(ctx, owner, item.ID)
	if err != nil {
		t.Fatalf("get case: %v", err)
	}
	if after.DocumentCount != 0 || after.TotalSize != 0 {
		t.Fatalf("deleting a document must release its case budget, got %d/%d", after.DocumentCount, after.TotalSize)
	}
}
