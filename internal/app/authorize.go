package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paperbase/api/internal/rbac"
	"paperbase/api/internal/store"
)

// resolveRole computes the caller's effective role on a document.
// Owners hold admin outright. A public document gives everyone,
// including anonymous callers, a viewer floor; an explicit grant can
// only raise the caller above that floor, never below it.
func (s *Service) resolveRole(ctx context.Context, doc store.Document, callerID string) (rbac.Role, error) {
	if callerID != "" && doc.OwnerID == callerID {
		return rbac.RoleAdmin, nil
	}

	var effective rbac.Role
	if doc.IsPublic {
		effective = rbac.RoleViewer
	}

	if callerID != "" {
		grant, err := s.store.GetGrant(ctx, doc.ID, callerID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("resolve grant: %w", err)
		}
		if err == nil {
			granted := rbac.Normalize(grant.Role)
			if rbac.Rank(granted) > rbac.Rank(effective) {
				effective = granted
			}
		}
	}
	return effective, nil
}

// requireRole loads a document and checks the caller holds at least the
// required role. A document the caller cannot even view reads as absent,
// so existence never leaks through an authorization error. A caller who
// can view but lacks the required role gets a plain Forbidden.
func (s *Service) requireRole(ctx context.Context, documentID, callerID string, required rbac.Role) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, errNotFound()
		}
		return store.Document{}, fmt.Errorf("get document: %w", err)
	}

	held, err := s.resolveRole(ctx, doc, callerID)
	if err != nil {
		return store.Document{}, err
	}
	if !rbac.Allows(held, rbac.RoleViewer) {
		return store.Document{}, errNotFound()
	}
	if !rbac.Allows(held, required) {
		return store.Document{}, errForbidden()
	}
	return doc, nil
}
