package store

import "errors"

// Case membership caps, enforced inside the attach transaction.
const (
	MaxCaseDocuments = 30
	MaxCaseBytes     = 50 << 20
)

var (
	// ErrAlreadyAttached means the document already belongs to a case.
	ErrAlreadyAttached = errors.New("document already attached to a case")
	// ErrNotAttached means the document does not belong to the named case.
	ErrNotAttached = errors.New("document not attached to this case")
	// ErrCaseInactive means the case no longer accepts documents.
	ErrCaseInactive = errors.New("case is not active")
	// ErrCaseFull means the case is at its document count or size cap.
	ErrCaseFull = errors.New("case document or size cap reached")
)
