package store

import "time"

type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Plan         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Document struct {
	ID         string
	Title      string
	Content    string
	IsPublic   bool
	OwnerID    string
	CaseID     *string
	ShareToken *string
	Version    int
	UpdatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DocumentVersion is an immutable content snapshot. For a given document
// the version numbers are unique and contiguous starting at 1.
type DocumentVersion struct {
	DocumentID string
	Version    int
	Content    string
	AuthorID   string
	ChangeNote string
	CreatedAt  time.Time
}

type PermissionGrant struct {
	DocumentID string
	UserID     string
	Role       string
	GrantedBy  string
	GrantedAt  time.Time
}

// SharedDocument pairs a document with the role the grantee holds on it.
type SharedDocument struct {
	Document
	GrantedRole string
}

// AuditEvent is append-only: rows are inserted and queried, never
// updated or deleted. ActorName and DocumentTitle are best-effort
// display enrichments resolved at query time; either may be nil when
// the referenced record has since disappeared.
type AuditEvent struct {
	ID          int64
	ActorID     string
	Action      string
	DocumentID  *string
	CaseID      *string
	WorkspaceID *string
	Detail      string
	CreatedAt   time.Time

	ActorName     *string
	DocumentTitle *string
}

// UsageCounter tracks per-feature usage for one user in one calendar
// month (Month is a "2006-01" key, so counters reset implicitly at the
// month boundary). Counts never decrease within a month.
type UsageCounter struct {
	UserID           string
	Month            string
	AIQuestions      int
	TasksCreated     int
	DocumentsCreated int
	PDFExports       int
	CalendarEvents   int
	FileUploads      int
	UpdatedAt        time.Time
}

// Case groups documents. DocumentCount and TotalSize are maintained
// transactionally on attach/detach/delete, never recomputed lazily.
type Case struct {
	ID            string
	Name          string
	OwnerID       string
	Active        bool
	DocumentCount int
	TotalSize     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
