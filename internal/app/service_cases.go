package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"paperbase/api/internal/audit"
	"paperbase/api/internal/store"
	"paperbase/api/internal/util"
)

// requireCase loads a case owned by the caller. Cases are not shared;
// anyone else sees Not Found.
func (s *Service) requireCase(ctx context.Context, caseID, callerID string) (store.Case, error) {
	item, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Case{}, errNotFound()
		}
		return store.Case{}, fmt.Errorf("get case: %w", err)
	}
	if item.OwnerID != callerID {
		return store.Case{}, errNotFound()
	}
	return item, nil
}

// CreateCase opens a new active case for the caller.
func (s *Service) CreateCase(ctx context.Context, caller Session, name string) (store.Case, error) {
	if err := requireCaller(caller); err != nil {
		return store.Case{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Case{}, errValidation("name is required")
	}

	item := store.Case{
		ID:      util.NewID("case"),
		Name:    name,
		OwnerID: caller.UserID,
		Active:  true,
	}
	if err := s.store.InsertCase(ctx, item); err != nil {
		return store.Case{}, fmt.Errorf("insert case: %w", err)
	}

	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID: caller.UserID,
		Action:  audit.ActionCreate,
		CaseID:  &item.ID,
		Detail:  name,
	})

	created, err := s.store.GetCase(ctx, item.ID)
	if err != nil {
		return store.Case{}, fmt.Errorf("reload case: %w", err)
	}
	return created, nil
}

// GetCase returns one of the caller's cases with its counters.
func (s *Service) GetCase(ctx context.Context, caller Session, caseID string) (store.Case, error) {
	if err := requireCaller(caller); err != nil {
		return store.Case{}, err
	}
	return s.requireCase(ctx, caseID, caller.UserID)
}

// ListCases returns the caller's cases.
func (s *Service) ListCases(ctx context.Context, caller Session) ([]store.Case, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.store.ListCasesOwnedBy(ctx, caller.UserID)
}

// SetCaseActive opens or closes a case. Closed cases refuse new
// documents but keep their existing members.
func (s *Service) SetCaseActive(ctx context.Context, caller Session, caseID string, active bool) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if _, err := s.requireCase(ctx, caseID, caller.UserID); err != nil {
		return err
	}
	return s.store.SetCaseActive(ctx, caseID, active)
}

// AttachToCase puts a document into a case. The caller must own both
// sides; counters and caps are handled inside the store transaction.
func (s *Service) AttachToCase(ctx context.Context, caller Session, caseID, documentID string) (store.Case, error) {
	if err := requireCaller(caller); err != nil {
		return store.Case{}, err
	}
	if _, err := s.requireCase(ctx, caseID, caller.UserID); err != nil {
		return store.Case{}, err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Case{}, errNotFound()
		}
		return store.Case{}, fmt.Errorf("get document: %w", err)
	}
	if doc.OwnerID != caller.UserID {
		return store.Case{}, errForbidden()
	}

	item, err := s.store.AttachDocument(ctx, caseID, documentID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyAttached):
			return store.Case{}, errInvalidState("document already belongs to a case")
		case errors.Is(err, store.ErrCaseInactive):
			return store.Case{}, errInvalidState("case is closed")
		case errors.Is(err, store.ErrCaseFull):
			return store.Case{}, errInvalidState("case is at its document or size cap")
		case errors.Is(err, sql.ErrNoRows):
			return store.Case{}, errNotFound()
		}
		return store.Case{}, fmt.Errorf("attach document: %w", err)
	}

	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionCustom,
		DocumentID: &doc.ID,
		CaseID:     &item.ID,
		Detail:     "attach",
	})
	return item, nil
}

// DetachFromCase removes a document from its case.
func (s *Service) DetachFromCase(ctx context.Context, caller Session, caseID, documentID string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if _, err := s.requireCase(ctx, caseID, caller.UserID); err != nil {
		return err
	}

	if err := s.store.DetachDocument(ctx, caseID, documentID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotAttached):
			return errInvalidState("document does not belong to this case")
		case errors.Is(err, sql.ErrNoRows):
			return errNotFound()
		}
		return fmt.Errorf("detach document: %w", err)
	}

	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionCustom,
		DocumentID: &documentID,
		CaseID:     &caseID,
		Detail:     "detach",
	})
	return nil
}

// ReconcileCase recomputes the case counters from its members.
func (s *Service) ReconcileCase(ctx context.Context, caller Session, caseID string) (store.Case, error) {
	if err := requireCaller(caller); err != nil {
		return store.Case{}, err
	}
	if _, err := s.requireCase(ctx, caseID, caller.UserID); err != nil {
		return store.Case{}, err
	}
	item, err := s.store.ReconcileCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Case{}, errNotFound()
		}
		return store.Case{}, fmt.Errorf("reconcile case: %w", err)
	}
	return item, nil
}
