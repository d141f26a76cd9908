package workflow

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/docuvault/docuvault/internal/shared"
)

// RepositoryPort defines data access methods for rule administration.
type RepositoryPort interface {
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id int64) (Rule, error)
	CreateRule(ctx context.Context, input RuleInput) (Rule, error)
	UpdateRule(ctx context.Context, id int64, input RuleInput) (Rule, error)
	DeleteRule(ctx context.Context, id int64) error
}

// Invalidator drops the cached rule set. Implemented by authz.RuleStore.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Auditor records administrative mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles transition rule administration. Every mutation invalidates
// the rule cache before returning, so reads after the response are never
// stale beyond the write itself.
type Service struct {
	repo   RepositoryPort
	cache  Invalidator
	audit  Auditor
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache Invalidator, audit Auditor, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, audit: audit, logger: logger}
}

// ListRules returns all rules.
func (s *Service) ListRules(ctx context.Context) ([]Rule, error) {
	return s.repo.ListRules(ctx)
}

// GetRule fetches a rule by ID.
func (s *Service) GetRule(ctx context.Context, id int64) (Rule, error) {
	return s.repo.GetRule(ctx, id)
}

// CreateRule inserts a new rule and invalidates the cache.
func (s *Service) CreateRule(ctx context.Context, actorID int64, input RuleInput) (Rule, error) {
	rule, err := s.repo.CreateRule(ctx, input)
	if err != nil {
		return Rule{}, err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actorID, "workflow.rule.create", rule.ID)
	return rule, nil
}

// UpdateRule updates a rule and invalidates the cache.
func (s *Service) UpdateRule(ctx context.Context, actorID, id int64, input RuleInput) (Rule, error) {
	rule, err := s.repo.UpdateRule(ctx, id, input)
	if err != nil {
		return Rule{}, err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actorID, "workflow.rule.update", rule.ID)
	return rule, nil
}

// DeleteRule removes a rule and invalidates the cache.
func (s *Service) DeleteRule(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actorID, "workflow.rule.delete", id)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.Warn("invalidate rule cache", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, ruleID int64) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transition_rule",
		EntityID: strconv.FormatInt(ruleID, 10),
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record workflow audit", slog.Any("error", err))
	}
}
