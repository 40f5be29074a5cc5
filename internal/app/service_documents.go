package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"paperbase/api/internal/audit"
	"paperbase/api/internal/export"
	"paperbase/api/internal/files"
	"paperbase/api/internal/presence"
	"paperbase/api/internal/quota"
	"paperbase/api/internal/rbac"
	"paperbase/api/internal/search"
	"paperbase/api/internal/store"
	"paperbase/api/internal/util"
)

// anonymousActor labels unauthenticated viewers in the audit trail.
const anonymousActor = "anonymous"

// DocumentSummary annotates a document with the caller's role on it.
type DocumentSummary struct {
	store.Document
	Role string `json:"role"`
}

func requireCaller(caller Session) error {
	if caller.UserID == "" {
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	}
	return nil
}

// Create makes a new document at version 1 with its initial snapshot.
// The free-tier document ceiling is checked first, but the counter is
// not consumed here: callers report the consumption themselves (the
// features/documents_created/consume endpoint), so a retried create
// never counts twice.
func (s *Service) Create(ctx context.Context, caller Session, input CreateDocumentInput) (store.Document, error) {
	if err := requireCaller(caller); err != nil {
		return store.Document{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Document{}, errValidation("title is required")
	}

	decision, err := s.quota.CheckLimit(ctx, caller.UserID, quota.FeatureDocsCreated)
	if err != nil {
		return store.Document{}, fmt.Errorf("check document quota: %w", err)
	}
	if !decision.Allowed {
		return store.Document{}, errQuotaExceeded(string(quota.FeatureDocsCreated), decision.CurrentUsage, decision.Limit)
	}

	doc := store.Document{
		ID:       util.NewID("doc"),
		Title:    title,
		Content:  input.Content,
		IsPublic: input.IsPublic,
		OwnerID:  caller.UserID,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return store.Document{}, fmt.Errorf("create document: %w", err)
	}

	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionCreate,
		DocumentID: &doc.ID,
		Detail:     title,
	})
	s.indexDocument(doc.ID)

	created, err := s.store.GetDocument(ctx, doc.ID)
	if err != nil {
		return store.Document{}, fmt.Errorf("reload document: %w", err)
	}
	return created, nil
}

// Read returns the document when the caller may view it, along with
// who else is looking at it right now. Absent and forbidden are
// indistinguishable to the caller.
func (s *Service) Read(ctx context.Context, callerID, documentID string) (store.Document, []presence.Viewer, error) {
	doc, err := s.requireRole(ctx, documentID, callerID, rbac.RoleViewer)
	if err != nil {
		return store.Document{}, nil, err
	}

	actor := callerID
	if actor == "" {
		actor = anonymousActor
	}
	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    actor,
		Action:     audit.ActionView,
		DocumentID: &doc.ID,
	})

	var viewers []presence.Viewer
	if s.presence != nil && callerID != "" {
		if err := s.presence.Heartbeat(ctx, callerID, doc.ID, "", ""); err != nil {
			log.Printf("presence: heartbeat for document=%s: %v", doc.ID, err)
		}
		viewers, err = s.presence.ListActiveForDocument(ctx, doc.ID, callerID)
		if err != nil {
			log.Printf("presence: list viewers for document=%s: %v", doc.ID, err)
			viewers = nil
		}
	}
	return doc, viewers, nil
}

// ReadVersion returns one historical snapshot.
func (s *Service) ReadVersion(ctx context.Context, callerID, documentID string, version int) (store.DocumentVersion, error) {
	if _, err := s.requireRole(ctx, documentID, callerID, rbac.RoleViewer); err != nil {
		return store.DocumentVersion{}, err
	}
	snapshot, err := s.store.GetVersion(ctx, documentID, version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.DocumentVersion{}, errNotFound()
		}
		return store.DocumentVersion{}, fmt.Errorf("get version: %w", err)
	}
	return snapshot, nil
}

// History lists the document's versions newest first.
func (s *Service) History(ctx context.Context, callerID, documentID string) ([]store.DocumentVersion, error) {
	if _, err := s.requireRole(ctx, documentID, callerID, rbac.RoleViewer); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, documentID)
}

// Update revises a document. New content appends a version; a title
// change alone renames in place without touching the ledger.
func (s *Service) Update(ctx context.Context, caller Session, documentID string, input UpdateDocumentInput) (store.Document, error) {
	if err := requireCaller(caller); err != nil {
		return store.Document{}, err
	}
	if input.Content == nil && input.Title == nil {
		return store.Document{}, errValidation("nothing to update")
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return store.Document{}, errValidation("title cannot be blank")
	}

	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleEditor)
	if err != nil {
		return store.Document{}, err
	}

	if input.Content == nil {
		title := strings.TrimSpace(*input.Title)
		if err := s.store.UpdateDocumentTitle(ctx, doc.ID, title, caller.UserID); err != nil {
			return store.Document{}, fmt.Errorf("rename document: %w", err)
		}
		s.audit.RecordBestEffort(ctx, store.AuditEvent{
			ActorID:    caller.UserID,
			Action:     audit.ActionEdit,
			DocumentID: &doc.ID,
			Detail:     "renamed to " + title,
		})
	} else {
		var title *string
		if input.Title != nil {
			trimmed := strings.TrimSpace(*input.Title)
			title = &trimmed
		}
		if _, err := s.store.AppendVersion(ctx, doc.ID, *input.Content, title, caller.UserID, input.ChangeNote); err != nil {
			return store.Document{}, fmt.Errorf("append version: %w", err)
		}
		s.audit.RecordBestEffort(ctx, store.AuditEvent{
			ActorID:    caller.UserID,
			Action:     audit.ActionEdit,
			DocumentID: &doc.ID,
			Detail:     input.ChangeNote,
		})
	}

	s.indexDocument(doc.ID)
	updated, err := s.store.GetDocument(ctx, doc.ID)
	if err != nil {
		return store.Document{}, fmt.Errorf("reload document: %w", err)
	}
	return updated, nil
}

// RollbackToVersion restores an old snapshot by appending it as a new
// version. History stays intact; nothing is rewritten.
func (s *Service) RollbackToVersion(ctx context.Context, caller Session, documentID string, targetVersion int) (int, error) {
	if err := requireCaller(caller); err != nil {
		return 0, err
	}
	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleEditor)
	if err != nil {
		return 0, err
	}

	target, err := s.store.GetVersion(ctx, doc.ID, targetVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errNotFound()
		}
		return 0, fmt.Errorf("get target version: %w", err)
	}

	note := fmt.Sprintf("Rollback to version %d", targetVersion)
	newVersion, err := s.store.AppendVersion(ctx, doc.ID, target.Content, nil, caller.UserID, note)
	if err != nil {
		return 0, fmt.Errorf("append rollback version: %w", err)
	}

	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionEdit,
		DocumentID: &doc.ID,
		Detail:     note,
	})
	s.indexDocument(doc.ID)
	return newVersion, nil
}

// GrantPermission gives a user a role on the document. Repeating a
// grant overwrites the previous role.
func (s *Service) GrantPermission(ctx context.Context, caller Session, documentID string, input GrantInput) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	role := rbac.Role(input.Role)
	if !rbac.Valid(role) {
		return errValidation(fmt.Sprintf("unknown role %q", input.Role))
	}
	if input.UserID == "" {
		return errValidation("userId is required")
	}

	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleAdmin)
	if err != nil {
		return err
	}
	if input.UserID == doc.OwnerID {
		return errInvalidState("owner already holds admin")
	}
	if _, err := s.store.GetUserByID(ctx, input.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errValidation("unknown user")
		}
		return fmt.Errorf("lookup grantee: %w", err)
	}

	if err := s.store.UpsertGrant(ctx, store.PermissionGrant{
		DocumentID: doc.ID,
		UserID:     input.UserID,
		Role:       string(role),
		GrantedBy:  caller.UserID,
	}); err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}

	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionShare,
		DocumentID: &doc.ID,
		Detail:     fmt.Sprintf("grant %s to %s", role, input.UserID),
	})
	return nil
}

// RevokePermission removes a user's grant on the document.
func (s *Service) RevokePermission(ctx context.Context, caller Session, documentID, userID string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleAdmin)
	if err != nil {
		return err
	}
	removed, err := s.store.DeleteGrant(ctx, doc.ID, userID)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	if !removed {
		return errNotFound()
	}
	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionShare,
		DocumentID: &doc.ID,
		Detail:     "revoke " + userID,
	})
	return nil
}

// ListPermissions returns the document's grants.
func (s *Service) ListPermissions(ctx context.Context, caller Session, documentID string) ([]store.PermissionGrant, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return s.store.ListGrantsForDocument(ctx, doc.ID)
}

// GenerateShareableLink mints (or returns) the document's share token
// and makes the document publicly viewable. The token is the only
// handle anonymous readers get, so its entropy is the whole secret.
func (s *Service) GenerateShareableLink(ctx context.Context, caller Session, documentID string) (string, error) {
	if err := requireCaller(caller); err != nil {
		return "", err
	}
	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleAdmin)
	if err != nil {
		return "", err
	}
	if doc.ShareToken != nil && *doc.ShareToken != "" {
		return *doc.ShareToken, nil
	}

	token := util.NewShareToken()
	if err := s.store.SetShareToken(ctx, doc.ID, token); err != nil {
		return "", fmt.Errorf("set share token: %w", err)
	}
	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionShare,
		DocumentID: &doc.ID,
		Detail:     "share link generated",
	})
	s.indexDocument(doc.ID)
	return token, nil
}

// ReadShared resolves a share token to its document.
func (s *Service) ReadShared(ctx context.Context, token string) (store.Document, error) {
	doc, err := s.store.GetDocumentByShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, errNotFound()
		}
		return store.Document{}, fmt.Errorf("lookup share token: %w", err)
	}
	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    anonymousActor,
		Action:     audit.ActionView,
		DocumentID: &doc.ID,
		Detail:     "via share link",
	})
	return doc, nil
}

// Delete removes the document, its versions, and its grants. Only the
// owner may delete; a grant-admin may not. The audit event is written
// before the purge so the trail survives the document.
func (s *Service) Delete(ctx context.Context, caller Session, documentID string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound()
		}
		return fmt.Errorf("get document: %w", err)
	}
	if doc.OwnerID != caller.UserID {
		held, err := s.resolveRole(ctx, doc, caller.UserID)
		if err != nil {
			return err
		}
		if !rbac.Allows(held, rbac.RoleViewer) {
			return errNotFound()
		}
		return errForbidden()
	}

	if err := s.audit.Record(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionDelete,
		DocumentID: &doc.ID,
		Detail:     doc.Title,
	}); err != nil {
		return fmt.Errorf("record delete: %w", err)
	}

	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	if s.search != nil {
		s.search.DeleteDocument(doc.ID)
	}
	if s.files != nil {
		if err := s.files.DeleteAll(ctx, doc.ID); err != nil {
			log.Printf("files: purge attachments for document=%s: %v", doc.ID, err)
		}
	}
	return nil
}

// ListForUser returns everything the user owns plus everything shared
// with them, role-annotated and deduplicated.
func (s *Service) ListForUser(ctx context.Context, callerID string) ([]DocumentSummary, error) {
	if callerID == "" {
		return nil, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
	}

	owned, err := s.store.ListDocumentsOwnedBy(ctx, callerID)
	if err != nil {
		return nil, err
	}
	shared, err := s.store.ListDocumentsSharedWith(ctx, callerID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(owned))
	items := make([]DocumentSummary, 0, len(owned)+len(shared))
	for _, doc := range owned {
		seen[doc.ID] = struct{}{}
		items = append(items, DocumentSummary{Document: doc, Role: string(rbac.RoleAdmin)})
	}
	for _, doc := range shared {
		if _, ok := seen[doc.ID]; ok {
			continue
		}
		items = append(items, DocumentSummary{Document: doc.Document, Role: string(rbac.Normalize(doc.GrantedRole))})
	}
	return items, nil
}

// Search matches documents by title and content, then filters the hits
// through the same authorization as Read. Unauthorized hits disappear
// silently; even their count is not revealed.
func (s *Service) Search(ctx context.Context, callerID string, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	resp := s.search.Search(q)

	visible := make([]search.Result, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.IsPublic || (callerID != "" && result.OwnerID == callerID) {
			visible = append(visible, result)
			continue
		}
		if callerID == "" {
			continue
		}
		if _, err := s.store.GetGrant(ctx, result.ID, callerID); err == nil {
			visible = append(visible, result)
		}
	}
	resp.Results = visible
	resp.Total = len(visible)
	return resp, nil
}

// Heartbeat records the caller's live position on a document.
func (s *Service) Heartbeat(ctx context.Context, caller Session, documentID, cursor string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if s.presence == nil {
		return nil
	}
	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleViewer)
	if err != nil {
		return err
	}
	return s.presence.Heartbeat(ctx, caller.UserID, doc.ID, "", cursor)
}

// LeaveDocument flips the caller inactive.
func (s *Service) LeaveDocument(ctx context.Context, caller Session) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if s.presence == nil {
		return nil
	}
	return s.presence.SetInactive(ctx, caller.UserID)
}

// DocumentAudit lists the document's trail, newest first.
func (s *Service) DocumentAudit(ctx context.Context, caller Session, documentID string, q store.AuditQuery) ([]store.AuditEvent, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if _, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleEditor); err != nil {
		return nil, err
	}
	return s.audit.ForDocument(ctx, documentID, q)
}

// ActorAudit lists the caller's own trail.
func (s *Service) ActorAudit(ctx context.Context, caller Session, q store.AuditQuery) ([]store.AuditEvent, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.audit.ForActor(ctx, caller.UserID, q)
}

// SystemAudit is the unscoped trail. Deployments gate this route at
// the proxy; the service only requires an authenticated caller.
func (s *Service) SystemAudit(ctx context.Context, caller Session, q store.AuditQuery) ([]store.AuditEvent, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.audit.System(ctx, q)
}

// ExportPDF renders a document (or one of its versions) to PDF,
// metered against the pdf_exports allowance.
func (s *Service) ExportPDF(ctx context.Context, caller Session, documentID string, version int) (*export.Result, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export not configured", nil)
	}
	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleViewer)
	if err != nil {
		return nil, err
	}

	decision, err := s.quota.CheckLimit(ctx, caller.UserID, quota.FeaturePDFExports)
	if err != nil {
		return nil, fmt.Errorf("check export quota: %w", err)
	}
	if !decision.Allowed {
		return nil, errQuotaExceeded(string(quota.FeaturePDFExports), decision.CurrentUsage, decision.Limit)
	}

	content := doc.Content
	exportVersion := doc.Version
	updatedAt := doc.UpdatedAt
	if version > 0 && version != doc.Version {
		snapshot, err := s.store.GetVersion(ctx, doc.ID, version)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, errNotFound()
			}
			return nil, fmt.Errorf("get version: %w", err)
		}
		content = snapshot.Content
		exportVersion = snapshot.Version
		updatedAt = snapshot.CreatedAt
	}

	result, err := s.exporter.ExportPDF(export.Document{
		ID:        doc.ID,
		Title:     doc.Title,
		Content:   content,
		Author:    caller.UserName,
		Version:   exportVersion,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer missing", nil)
		}
		return nil, fmt.Errorf("export pdf: %w", err)
	}

	if err := s.quota.Increment(ctx, caller.UserID, quota.FeaturePDFExports, 1); err != nil {
		log.Printf("quota: increment pdf_exports for user=%s: %v", caller.UserID, err)
	}
	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionCustom,
		DocumentID: &doc.ID,
		Detail:     "export:pdf",
	})
	return result, nil
}

// UploadAttachment stores a file against the document, metered against
// the file_uploads allowance.
func (s *Service) UploadAttachment(ctx context.Context, caller Session, documentID, filename, contentType string, size int64, body io.Reader) (files.Attachment, error) {
	if err := requireCaller(caller); err != nil {
		return files.Attachment{}, err
	}
	if s.files == nil {
		return files.Attachment{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	doc, err := s.requireRole(ctx, documentID, caller.UserID, rbac.RoleEditor)
	if err != nil {
		return files.Attachment{}, err
	}

	decision, err := s.quota.CheckLimit(ctx, caller.UserID, quota.FeatureFileUploads)
	if err != nil {
		return files.Attachment{}, fmt.Errorf("check upload quota: %w", err)
	}
	if !decision.Allowed {
		return files.Attachment{}, errQuotaExceeded(string(quota.FeatureFileUploads), decision.CurrentUsage, decision.Limit)
	}

	attachment, err := s.files.Upload(ctx, doc.ID, filename, contentType, size, body)
	if err != nil {
		return files.Attachment{}, errValidation(err.Error())
	}

	if err := s.quota.Increment(ctx, caller.UserID, quota.FeatureFileUploads, 1); err != nil {
		log.Printf("quota: increment file_uploads for user=%s: %v", caller.UserID, err)
	}
	s.audit.RecordBestEffort(ctx, store.AuditEvent{
		ActorID:    caller.UserID,
		Action:     audit.ActionCustom,
		DocumentID: &doc.ID,
		Detail:     "upload:" + attachment.Filename,
	})
	return attachment, nil
}

// ListAttachments returns the document's stored attachments.
func (s *Service) ListAttachments(ctx context.Context, callerID, documentID string) ([]files.Attachment, error) {
	if s.files == nil {
		return []files.Attachment{}, nil
	}
	doc, err := s.requireRole(ctx, documentID, callerID, rbac.RoleViewer)
	if err != nil {
		return nil, err
	}
	return s.files.List(ctx, doc.ID)
}

// AttachmentURL mints a short-lived download link.
func (s *Service) AttachmentURL(ctx context.Context, callerID, documentID, key string) (string, error) {
	if s.files == nil {
		return "", domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Attachment storage not configured", nil)
	}
	doc, err := s.requireRole(ctx, documentID, callerID, rbac.RoleViewer)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(key, "attachments/"+doc.ID+"/") {
		return "", errNotFound()
	}
	return s.files.PresignedGet(ctx, key)
}

// indexDocument pushes the document's current state to the search
// index, fire-and-forget.
func (s *Service) indexDocument(documentID string) {
	if s.search == nil {
		return
	}
	doc, err := s.store.GetDocument(context.Background(), documentID)
	if err != nil {
		log.Printf("search: reload document=%s for indexing: %v", documentID, err)
		return
	}
	s.search.IndexDocument(search.DocumentRecord{
		ID:       doc.ID,
		Title:    doc.Title,
		Content:  doc.Content,
		OwnerID:  doc.OwnerID,
		IsPublic: doc.IsPublic,
	})
}
