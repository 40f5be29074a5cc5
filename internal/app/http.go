package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paperbase/api/internal/auth"
	"paperbase/api/internal/authpw"
	"paperbase/api/internal/files"
	"paperbase/api/internal/presence"
	"paperbase/api/internal/quota"
	"paperbase/api/internal/search"
	"paperbase/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/session/signout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SignOut(r.Context(), body.RefreshToken); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"plan":          session.Plan,
		})
		return
	}

	// Everything below resolves the caller first. A missing token is an
	// anonymous caller; a present-but-bad token is rejected outright.
	var caller Session
	if token := bearerToken(r); token != "" {
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		caller = session
	}

	segments := splitPath(r.URL.Path)
	if len(segments) < 2 || segments[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch segments[1] {
	case "shared":
		if r.Method == http.MethodGet && len(segments) == 3 {
			doc, err := s.service.ReadShared(r.Context(), segments[2])
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, documentPayload(doc, nil))
			return
		}
	case "search":
		if r.Method == http.MethodGet && len(segments) == 2 {
			s.handleSearch(w, r, caller)
			return
		}
	case "documents":
		s.handleDocuments(w, r, caller, segments[2:])
		return
	case "cases":
		s.handleCases(w, r, caller, segments[2:])
		return
	case "presence":
		if r.Method == http.MethodDelete && len(segments) == 2 {
			if err := s.service.LeaveDocument(r.Context(), caller); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "audit":
		if r.Method == http.MethodGet && len(segments) == 2 {
			events, err := s.service.ActorAudit(r.Context(), caller, auditQueryFromRequest(r))
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": events})
			return
		}
		if r.Method == http.MethodGet && len(segments) == 3 && segments[2] == "system" {
			events, err := s.service.SystemAudit(r.Context(), caller, auditQueryFromRequest(r))
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": events})
			return
		}
	case "usage":
		if r.Method == http.MethodGet && len(segments) == 2 {
			if err := requireCaller(caller); err != nil {
				s.writeMapped(w, err)
				return
			}
			counter, limits, err := s.service.Usage(r.Context(), caller.UserID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"usage": counter, "limits": limits})
			return
		}
	case "billing":
		if r.Method == http.MethodPost && len(segments) == 3 && segments[2] == "plan" {
			if err := requireCaller(caller); err != nil {
				s.writeMapped(w, err)
				return
			}
			var body struct {
				Plan string `json:"plan"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.SetPlan(r.Context(), caller.UserID, body.Plan); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "plan": body.Plan})
			return
		}
	case "features":
		if r.Method == http.MethodPost && len(segments) == 4 && segments[3] == "consume" {
			if err := requireCaller(caller); err != nil {
				s.writeMapped(w, err)
				return
			}
			decision, err := s.service.ConsumeFeature(r.Context(), caller.UserID, quota.Feature(segments[2]))
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, decision)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, caller Session, rest []string) {
	ctx := r.Context()

	// /api/documents
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListForUser(ctx, caller.UserID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"documents": items})
		case http.MethodPost:
			var input CreateDocumentInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			doc, err := s.service.Create(ctx, caller, input)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, documentPayload(doc, nil))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	documentID := rest[0]

	// /api/documents/{id}
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			doc, viewers, err := s.service.Read(ctx, caller.UserID, documentID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, documentPayload(doc, viewers))
		case http.MethodPut:
			var input UpdateDocumentInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			doc, err := s.service.Update(ctx, caller, documentID, input)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, documentPayload(doc, nil))
		case http.MethodDelete:
			if err := s.service.Delete(ctx, caller, documentID); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[1] {
	case "versions":
		if r.Method == http.MethodGet && len(rest) == 2 {
			versions, err := s.service.History(ctx, caller.UserID, documentID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
			return
		}
		if r.Method == http.MethodGet && len(rest) == 3 {
			version, err := strconv.Atoi(rest[2])
			if err != nil || version < 1 {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid version number", nil)
				return
			}
			snapshot, err := s.service.ReadVersion(ctx, caller.UserID, documentID, version)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
	case "rollback":
		if r.Method == http.MethodPost && len(rest) == 2 {
			var body struct {
				Version int `json:"version"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if body.Version < 1 {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid version number", nil)
				return
			}
			newVersion, err := s.service.RollbackToVersion(ctx, caller, documentID, body.Version)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"version": newVersion})
			return
		}
	case "permissions":
		if r.Method == http.MethodGet && len(rest) == 2 {
			grants, err := s.service.ListPermissions(ctx, caller, documentID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"permissions": grants})
			return
		}
		if r.Method == http.MethodPost && len(rest) == 2 {
			var input GrantInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.GrantPermission(ctx, caller, documentID, input); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		if r.Method == http.MethodDelete && len(rest) == 3 {
			if err := s.service.RevokePermission(ctx, caller, documentID, rest[2]); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "share-link":
		if r.Method == http.MethodPost && len(rest) == 2 {
			token, err := s.service.GenerateShareableLink(ctx, caller, documentID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"token": token, "url": "/api/shared/" + token})
			return
		}
	case "audit":
		if r.Method == http.MethodGet && len(rest) == 2 {
			events, err := s.service.DocumentAudit(ctx, caller, documentID, auditQueryFromRequest(r))
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": events})
			return
		}
	case "presence":
		if r.Method == http.MethodPost && len(rest) == 2 {
			var body struct {
				Cursor string `json:"cursor"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.Heartbeat(ctx, caller, documentID, body.Cursor); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "export":
		if r.Method == http.MethodGet && len(rest) == 3 && rest[2] == "pdf" {
			version := 0
			if raw := r.URL.Query().Get("version"); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil || parsed < 1 {
					writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid version number", nil)
					return
				}
				version = parsed
			}
			result, err := s.service.ExportPDF(ctx, caller, documentID, version)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			w.Header().Set("Content-Type", result.MimeType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(result.Data)
			return
		}
	case "attachments":
		if r.Method == http.MethodGet && len(rest) == 2 {
			items, err := s.service.ListAttachments(ctx, caller.UserID, documentID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"attachments": items})
			return
		}
		if r.Method == http.MethodPost && len(rest) == 2 {
			s.handleUpload(w, r, caller, documentID)
			return
		}
		if r.Method == http.MethodGet && len(rest) == 3 && rest[2] == "url" {
			key := r.URL.Query().Get("key")
			url, err := s.service.AttachmentURL(ctx, caller.UserID, documentID, key)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"url": url})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCases(w http.ResponseWriter, r *http.Request, caller Session, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListCases(ctx, caller)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cases": items})
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.CreateCase(ctx, caller, body.Name)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, item)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	caseID := rest[0]

	if len(rest) == 1 {
		if r.Method == http.MethodGet {
			item, err := s.service.GetCase(ctx, caller, caseID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	switch rest[1] {
	case "active":
		if r.Method == http.MethodPut && len(rest) == 2 {
			var body struct {
				Active bool `json:"active"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.SetCaseActive(ctx, caller, caseID, body.Active); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "documents":
		if r.Method == http.MethodPost && len(rest) == 2 {
			var body struct {
				DocumentID string `json:"documentId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			item, err := s.service.AttachToCase(ctx, caller, caseID, body.DocumentID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
		if r.Method == http.MethodDelete && len(rest) == 3 {
			if err := s.service.DetachFromCase(ctx, caller, caseID, rest[2]); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	case "reconcile":
		if r.Method == http.MethodPost && len(rest) == 2 {
			item, err := s.service.ReconcileCase(ctx, caller, caseID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, item)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrEmailExists) {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		if errors.Is(err, authpw.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "BAD_CREDENTIALS", "Invalid email or password", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNIN_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, caller Session) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	field := query.Get("field")
	if field != "" && field != "title" && field != "content" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "field must be title or content", nil)
		return
	}

	resp, err := s.service.Search(r.Context(), caller.UserID, search.Query{
		Text:   query.Get("q"),
		Field:  field,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpload accepts one multipart file under the "file" field.
func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, caller Session, documentID string) {
	r.Body = http.MaxBytesReader(w, r.Body, files.MaxUploadSize+4096)
	if err := r.ParseMultipartForm(files.MaxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Missing file field", nil)
		return
	}
	defer file.Close()

	attachment, err := s.service.UploadAttachment(
		r.Context(), caller, documentID,
		header.Filename, header.Header.Get("Content-Type"), header.Size, file,
	)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachment)
}

func (s *HTTPServer) writeMapped(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"plan":         session.Plan,
		"expiresAt":    session.ExpiresAt,
	}
}

func documentPayload(doc store.Document, viewers []presence.Viewer) map[string]any {
	payload := map[string]any{
		"id":        doc.ID,
		"title":     doc.Title,
		"content":   doc.Content,
		"isPublic":  doc.IsPublic,
		"ownerId":   doc.OwnerID,
		"version":   doc.Version,
		"updatedBy": doc.UpdatedBy,
		"createdAt": doc.CreatedAt,
		"updatedAt": doc.UpdatedAt,
	}
	if doc.CaseID != nil {
		payload["caseId"] = *doc.CaseID
	}
	if viewers != nil {
		payload["activeViewers"] = viewers
	}
	return payload
}

func auditQueryFromRequest(r *http.Request) store.AuditQuery {
	query := r.URL.Query()
	q := store.AuditQuery{Action: query.Get("action")}
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			q.Limit = parsed
		}
	}
	if raw := query.Get("since"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			q.Since = parsed
		}
	}
	if raw := query.Get("until"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			q.Until = parsed
		}
	}
	return q
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
