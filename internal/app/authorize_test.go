package app

import (
	"context"
	"testing"

	"paperbase/api/internal/rbac"
	"paperbase/api/internal/store"
)

func TestResolveRole(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	ctx := context.Background()

	private := store.Document{ID: "doc_private", OwnerID: "alice"}
	public := store.Document{ID: "doc_public", OwnerID: "alice", IsPublic: true}

	if err := mem.UpsertGrant(ctx, store.PermissionGrant{DocumentID: private.ID, UserID: "bob", Role: "editor", GrantedBy: "alice"}); err != nil {
		t.Fatalf("seed grant: %v", err)
	}
	// A viewer grant on a public document must not demote the caller
	// below the public floor, and a grant with a nonsense role grants
	// nothing at all.
	if err := mem.UpsertGrant(ctx, store.PermissionGrant{DocumentID: public.ID, UserID: "carol", Role: "viewer", GrantedBy: "alice"}); err != nil {
		t.Fatalf("seed grant: %v", err)
	}
	if err := mem.UpsertGrant(ctx, store.PermissionGrant{DocumentID: private.ID, UserID: "dave", Role: "superuser", GrantedBy: "alice"}); err != nil {
		t.Fatalf("seed grant: %v", err)
	}

	cases := []struct {
		name     string
		doc      store.Document
		callerID string
		want     rbac.Role
	}{
		{"owner is admin", private, "alice", rbac.RoleAdmin},
		{"grant raises to editor", private, "bob", rbac.RoleEditor},
		{"stranger has nothing on private", private, "mallory", ""},
		{"anonymous has nothing on private", private, "", ""},
		{"anonymous views public", public, "", rbac.RoleViewer},
		{"stranger views public", public, "mallory", rbac.RoleViewer},
		{"viewer grant cannot demote below public floor", public, "carol", rbac.RoleViewer},
		{"unknown granted role grants nothing", private, "dave", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.resolveRole(ctx, tc.doc, tc.callerID)
			if err != nil {
				t.Fatalf("resolveRole: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRequireRoleHidesExistence(t *testing.T) {
	mem := newMemStore()
	svc := newTestService(mem)
	ctx := context.Background()

	doc := store.Document{ID: "doc_private", Title: "Private", OwnerID: "alice"}
	mem.docs[doc.ID] = doc
	if err := mem.UpsertGrant(ctx, store.PermissionGrant{DocumentID: doc.ID, UserID: "bob", Role: "viewer", GrantedBy: "alice"}); err != nil {
		t.Fatalf("seed grant: %v", err)
	}

	// No view access at all: reads as absent.
	_, err := svc.requireRole(ctx, doc.ID, "mallory", rbac.RoleViewer)
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Fatalf("stranger must see NOT_FOUND, got %s", code)
	}

	// Can view but lacks the required role: plain forbidden.
	_, err = svc.requireRole(ctx, doc.ID, "bob", rbac.RoleEditor)
	if code := domainCode(t, err); code != "FORBIDDEN" {
		t.Fatalf("viewer asking for editor must see FORBIDDEN, got %s", code)
	}

	// Actually missing documents use the same code as hidden ones.
	_, err = svc.requireRole(ctx, "doc_missing", "alice", rbac.RoleViewer)
	if code := domainCode(t, err); code != "NOT_FOUND" {
		t.Fatalf("missing doc must be NOT_FOUND, got %s", code)
	}

	if _, err := svc.requireRole(ctx, doc.ID, "alice", rbac.RoleAdmin); err != nil {
		t.Fatalf("owner must pass any role check: %v", err)
	}
}
