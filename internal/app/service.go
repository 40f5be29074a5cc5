package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"paperbase/api/internal/audit"
	"paperbase/api/internal/auth"
	"paperbase/api/internal/authpw"
	"paperbase/api/internal/config"
	"paperbase/api/internal/export"
	"paperbase/api/internal/files"
	"paperbase/api/internal/presence"
	"paperbase/api/internal/quota"
	"paperbase/api/internal/search"
	"paperbase/api/internal/store"
	"paperbase/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Plan         string
	JTI          string
	ExpiresAt    time.Time
}

type CreateDocumentInput struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	IsPublic bool   `json:"isPublic"`
}

type UpdateDocumentInput struct {
	Content    *string `json:"content"`
	Title      *string `json:"title"`
	ChangeNote string  `json:"changeNote"`
}

type GrantInput struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	SetUserPlan(context.Context, string, string) error
	GetUserPlan(context.Context, string) (string, error)

	CreateDocument(context.Context, store.Document) error
	GetDocument(context.Context, string) (store.Document, error)
	GetDocumentByShareToken(context.Context, string) (store.Document, error)
	AppendVersion(ctx context.Context, documentID, content string, title *string, authorID, changeNote string) (int, error)
	UpdateDocumentTitle(ctx context.Context, documentID, title, updatedBy string) error
	SetShareToken(ctx context.Context, documentID, token string) error
	DeleteDocument(context.Context, string) error
	ListDocumentsOwnedBy(context.Context, string) ([]store.Document, error)
	ListDocumentsSharedWith(context.Context, string) ([]store.SharedDocument, error)

	GetVersion(ctx context.Context, documentID string, version int) (store.DocumentVersion, error)
	ListVersions(context.Context, string) ([]store.DocumentVersion, error)

	UpsertGrant(context.Context, store.PermissionGrant) error
	GetGrant(ctx context.Context, documentID, userID string) (store.PermissionGrant, error)
	ListGrantsForDocument(context.Context, string) ([]store.PermissionGrant, error)
	DeleteGrant(ctx context.Context, documentID, userID string) (bool, error)

	InsertAuditEvent(context.Context, store.AuditEvent) error
	ListAuditByDocument(context.Context, string, store.AuditQuery) ([]store.AuditEvent, error)
	ListAuditByActor(context.Context, string, store.AuditQuery) ([]store.AuditEvent, error)
	ListAuditSystem(context.Context, store.AuditQuery) ([]store.AuditEvent, error)

	GetUsageCounter(ctx context.Context, userID, month string) (store.UsageCounter, error)
	IncrementUsage(ctx context.Context, userID, month, feature string, n int) error

	InsertCase(context.Context, store.Case) error
	GetCase(context.Context, string) (store.Case, error)
	ListCasesOwnedBy(context.Context, string) ([]store.Case, error)
	SetCaseActive(ctx context.Context, caseID string, active bool) error
	AttachDocument(ctx context.Context, caseID, documentID string) (store.Case, error)
	DetachDocument(ctx context.Context, caseID, documentID string) error
	ReconcileCase(context.Context, string) (store.Case, error)

	Ping(ctx context.Context) error
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexDocument(doc search.DocumentRecord)
	DeleteDocument(id string)
}

type presenceTracker interface {
	Heartbeat(ctx context.Context, userID, documentID, workspaceID, cursor string) error
	SetInactive(ctx context.Context, userID string) error
	ListActiveForDocument(ctx context.Context, documentID, excludeUserID string) ([]presence.Viewer, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	audit    *audit.Recorder
	quota    *quota.Guard
	presence presenceTracker
	search   searchIndex
	exporter *export.Service
	files    *files.Service
	passwd   *authpw.Service
}

// Deps carries the optional collaborators. Search, presence, files,
// and the exporter may be nil when their backend is not configured;
// the affected endpoints degrade instead of the server refusing to
// start.
type Deps struct {
	Sessions sessionStore
	Search   searchIndex
	Presence presenceTracker
	Exporter *export.Service
	Files    *files.Service
}

func New(cfg config.Config, data dataStore, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		store:    data,
		sessions: deps.Sessions,
		audit:    audit.NewRecorder(data),
		quota:    quota.NewGuard(data),
		presence: deps.Presence,
		search:   deps.Search,
		exporter: deps.Exporter,
		files:    deps.Files,
		passwd:   authpw.NewService(data),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SignUp registers a new free-plan account and opens a session.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.passwd.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// SignIn authenticates and opens a session.
func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.passwd.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Plan: user.Plan,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	refresh := randomRefreshToken()
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, time.Now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Plan:         user.Plan,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates the refresh token and issues a fresh access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, domainError(401, "UNAUTHORIZED", "Invalid refresh token", nil)
	}

	// Plan may have changed since the refresh token was minted.
	if fresh, err := s.store.GetUserByID(ctx, user.ID); err == nil {
		user = fresh
	}

	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return s.issueSession(ctx, user)
}

// SignOut revokes the refresh token. The access token simply expires.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// SessionFromToken validates a bearer token into a caller identity.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Plan:      claims.Plan,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// SetPlan switches the caller's billing plan.
func (s *Service) SetPlan(ctx context.Context, callerID, plan string) error {
	if err := s.quota.SetPlan(ctx, callerID, plan); err != nil {
		return errValidation(err.Error())
	}
	return nil
}

// Usage returns the caller's month-to-date consumption and ceilings.
func (s *Service) Usage(ctx context.Context, callerID string) (store.UsageCounter, map[quota.Feature]int, error) {
	return s.quota.Usage(ctx, callerID)
}

// consumableFeatures are the features callers report themselves:
// the ones with no dedicated endpoint (AI questions, tasks, calendar
// events) plus the caller-side documents_created report. PDF exports
// and file uploads are metered inside their own endpoints and are not
// consumable here, so nothing can be counted twice.
var consumableFeatures = map[quota.Feature]bool{
	quota.FeatureAIQuestions:    true,
	quota.FeatureTasksCreated:   true,
	quota.FeatureCalendarEvents: true,
	quota.FeatureDocsCreated:    true,
}

// ConsumeFeature checks and consumes one unit of a caller-reported
// metered feature.
func (s *Service) ConsumeFeature(ctx context.Context, callerID string, feature quota.Feature) (quota.Decision, error) {
	if !s.quota.Valid(feature) || !consumableFeatures[feature] {
		return quota.Decision{}, errValidation(fmt.Sprintf("feature %q is not consumable here", feature))
	}
	decision, err := s.quota.CheckLimit(ctx, callerID, feature)
	if err != nil {
		return quota.Decision{}, fmt.Errorf("check %s: %w", feature, err)
	}
	if !decision.Allowed {
		return decision, errQuotaExceeded(string(feature), decision.CurrentUsage, decision.Limit)
	}
	if err := s.quota.Increment(ctx, callerID, feature, 1); err != nil {
		return decision, fmt.Errorf("consume %s: %w", feature, err)
	}
	decision.CurrentUsage++
	return decision, nil
}

func randomRefreshToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
