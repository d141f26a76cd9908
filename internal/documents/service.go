package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docuvault/docuvault/internal/authz"
	"github.com/docuvault/docuvault/internal/shared"
)

// ErrTransitionNotAllowed indicates the gate denied the requested transition.
var ErrTransitionNotAllowed = errors.New("documents: transition not allowed")

// RepositoryPort defines data access for documents.
type RepositoryPort interface {
	List(ctx context.Context, status string) ([]Document, error)
	Get(ctx context.Context, id string) (Document, error)
	UpdateStatus(ctx context.Context, id string, from, to authz.Status, actorID int64, note string) error
	History(ctx context.Context, id string) ([]TransitionRecord, error)
	ListExpired(ctx context.Context, now time.Time) ([]Document, error)
}

// Authorizer resolves a user's effective grants. Implemented by authz.Service.
type Authorizer interface {
	GrantsFor(ctx context.Context, userID int64) (authz.GrantSet, error)
	SubjectFor(userID int64, groupID, groupName string, grants authz.GrantSet) authz.Subject
}

// GatePort decides transitions. Implemented by authz.Gate.
type GatePort interface {
	IsTransitionAllowed(ctx context.Context, from, to authz.Status, dec authz.Decision) bool
	AllowedTransitions(ctx context.Context, from authz.Status, dec authz.Decision) []authz.TransitionRule
}

// IdempotencyPort guards transition replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Auditor records transitions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Viewer identifies the requesting user together with the group carried in
// their session.
type Viewer struct {
	UserID    int64
	GroupID   string
	GroupName string
}

// Service exposes document listing, visibility checks and lifecycle
// transitions.
type Service struct {
	repo   RepositoryPort
	authz  Authorizer
	gate   GatePort
	idem   IdempotencyPort
	audit  Auditor
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authorizer Authorizer, gate GatePort, idem IdempotencyPort, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, authz: authorizer, gate: gate, idem: idem, audit: audit, logger: logger}
}

func (s *Service) subjectFor(ctx context.Context, viewer Viewer) (authz.Subject, authz.GrantSet, error) {
	grants, err := s.authz.GrantsFor(ctx, viewer.UserID)
	if err != nil {
		return authz.Subject{}, authz.GrantSet{}, err
	}
	return s.authz.SubjectFor(viewer.UserID, viewer.GroupID, viewer.GroupName, grants), grants, nil
}

// List returns the documents the viewer may see, paginated after the access
// filter so page counts reflect visible documents only.
func (s *Service) List(ctx context.Context, viewer Viewer, query ListQuery) ([]Document, shared.Pagination, error) {
	if query.Status != "" {
		if _, ok := authz.ParseStatus(query.Status); !ok {
			return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, query.Status)
		}
	}
	subject, _, err := s.subjectFor(ctx, viewer)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	all, err := s.repo.List(ctx, query.Status)
	if err != nil {
		return nil, shared.Pagination{}, err
	}

	visible := make([]Document, 0, len(all))
	for _, doc := range all {
		if authz.CanAccessDocument(doc.Descriptor(), subject) {
			visible = append(visible, doc)
		}
	}

	page := shared.NewPagination(query.Page, query.PerPage, len(visible))
	start := (page.Page - 1) * page.PerPage
	if start >= len(visible) {
		return []Document{}, page, nil
	}
	end := start + page.PerPage
	if end > len(visible) {
		end = len(visible)
	}
	return visible[start:end], page, nil
}

// Get fetches one document, enforcing visibility. Hidden documents report
// forbidden, not absent, so a caller probing ids learns nothing extra.
func (s *Service) Get(ctx context.Context, viewer Viewer, id string) (Document, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	subject, _, err := s.subjectFor(ctx, viewer)
	if err != nil {
		return Document{}, err
	}
	if !authz.CanAccessDocument(doc.Descriptor(), subject) {
		return Document{}, shared.ErrForbidden
	}
	return doc, nil
}

// AllowedTransitions lists the transitions the viewer could apply to the
// document right now, in configured display order.
func (s *Service) AllowedTransitions(ctx context.Context, viewer Viewer, id string) ([]authz.TransitionRule, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	subject, grants, err := s.subjectFor(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessDocument(doc.Descriptor(), subject) {
		return nil, shared.ErrForbidden
	}
	return s.gate.AllowedTransitions(ctx, doc.Status, authz.DecisionFor(grants)), nil
}

// ApplyTransition moves the document to the requested status after the gate
// approves. An idempotency key, when supplied, makes replays report a
// conflict instead of double-applying.
func (s *Service) ApplyTransition(ctx context.Context, viewer Viewer, id string, input TransitionInput) (Document, error) {
	to, ok := authz.ParseStatus(input.ToStatus)
	if !ok {
		return Document{}, fmt.Errorf("%w: unknown status %q", shared.ErrInvalidInput, input.ToStatus)
	}

	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	subject, grants, err := s.subjectFor(ctx, viewer)
	if err != nil {
		return Document{}, err
	}
	if !authz.CanAccessDocument(doc.Descriptor(), subject) {
		return Document{}, shared.ErrForbidden
	}
	if !s.gate.IsTransitionAllowed(ctx, doc.Status, to, authz.DecisionFor(grants)) {
		return Document{}, ErrTransitionNotAllowed
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "documents"); err != nil {
			return Document{}, err
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, doc.Status, to, viewer.UserID, input.Note); err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, input.IdempotencyKey); delErr != nil && s.logger != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return Document{}, err
	}

	s.recordAudit(ctx, viewer.UserID, id, doc.Status, to)
	return s.repo.Get(ctx, id)
}

// History returns the transition trail for a visible document.
func (s *Service) History(ctx context.Context, viewer Viewer, id string) ([]TransitionRecord, error) {
	if _, err := s.Get(ctx, viewer, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// ExpireOverdue moves documents past their expiry into EXPIRED, provided a
// rule edge to EXPIRED exists for their current status. Runs under a system
// decision that bypasses level checks. Returns the number of documents
// expired.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.repo.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	dec := authz.Decision{RoleLevel: 100, FullModuleBypass: true}
	expired := 0
	for _, doc := range overdue {
		if !s.gate.IsTransitionAllowed(ctx, doc.Status, authz.StatusExpired, dec) {
			if s.logger != nil {
				s.logger.Warn("no expiry edge for status",
					slog.String("document_id", doc.ID),
					slog.String("status", string(doc.Status)))
			}
			continue
		}
		if err := s.repo.UpdateStatus(ctx, doc.ID, doc.Status, authz.StatusExpired, 0, "expired automatically"); err != nil {
			if errors.Is(err, ErrStatusChanged) || errors.Is(err, shared.ErrNotFound) {
				continue
			}
			return expired, err
		}
		s.recordAudit(ctx, 0, doc.ID, doc.Status, authz.StatusExpired)
		expired++
	}
	return expired, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, docID string, from, to authz.Status) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actorID,
		Action:   "document.transition",
		Entity:   "document",
		EntityID: docID,
		Meta:     map[string]any{"from": string(from), "to": string(to)},
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record document audit", slog.Any("error", err))
	}
}
