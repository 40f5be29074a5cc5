// Package audit records the append-only activity trail. Events are
// never updated or deleted; readers get them newest first.
package audit

import (
	"context"
	"log"

	"paperbase/api/internal/store"
)

// Actions recorded in the trail. Rollbacks land as edit events with a
// synthesized detail; exports and uploads use custom with a detail tag.
const (
	ActionCreate  = "create"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionShare   = "share"
	ActionComment = "comment"
	ActionView    = "view"
	ActionCustom  = "custom"
)

type eventStore interface {
	InsertAuditEvent(context.Context, store.AuditEvent) error
	ListAuditByDocument(context.Context, string, store.AuditQuery) ([]store.AuditEvent, error)
	ListAuditByActor(context.Context, string, store.AuditQuery) ([]store.AuditEvent, error)
	ListAuditSystem(context.Context, store.AuditQuery) ([]store.AuditEvent, error)
}

type Recorder struct {
	store eventStore
}

func NewRecorder(eventStore eventStore) *Recorder {
	return &Recorder{store: eventStore}
}

// Record appends one event and reports any failure to the caller.
// Use this when the trail entry must exist before the operation
// proceeds, like document deletion.
func (r *Recorder) Record(ctx context.Context, event store.AuditEvent) error {
	return r.store.InsertAuditEvent(ctx, event)
}

// RecordBestEffort appends one event and only logs on failure. Most
// mutations use this: a broken trail should not fail the operation
// that already succeeded.
func (r *Recorder) RecordBestEffort(ctx context.Context, event store.AuditEvent) {
	if err := r.store.InsertAuditEvent(ctx, event); err != nil {
		log.Printf("audit: record %s event: %v", event.Action, err)
	}
}

func (r *Recorder) ForDocument(ctx context.Context, documentID string, q store.AuditQuery) ([]store.AuditEvent, error) {
	return r.store.ListAuditByDocument(ctx, documentID, q)
}

func (r *Recorder) ForActor(ctx context.Context, actorID string, q store.AuditQuery) ([]store.AuditEvent, error) {
	return r.store.ListAuditByActor(ctx, actorID, q)
}

func (r *Recorder) System(ctx context.Context, q store.AuditQuery) ([]store.AuditEvent, error) {
	return r.store.ListAuditSystem(ctx, q)
}
