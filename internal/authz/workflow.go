package authz

import (
	"context"
	"log/slog"
	"sort"
)

// RuleSource supplies the configured transition rules. Implemented by
// RuleStore; the gate only knows how to evaluate a rule, never the rule set.
type RuleSource interface {
	Get(ctx context.Context, from, to Status) (TransitionRule, bool, error)
	ListByFrom(ctx context.Context, from Status) ([]TransitionRule, error)
}

// Gate evaluates document status transitions against the configured rules.
type Gate struct {
	rules  RuleSource
	logger *slog.Logger
}

// NewGate constructs a Gate.
func NewGate(rules RuleSource, logger *slog.Logger) *Gate {
	return &Gate{rules: rules, logger: logger}
}

// Decision carries the caller-side inputs of a transition decision.
type Decision struct {
	RoleLevel        int
	Permissions      PermissionSet
	FullModuleBypass bool
}

func ruleAllows(rule TransitionRule, dec Decision) bool {
	if !rule.IsActive {
		return false
	}
	if dec.FullModuleBypass {
		return true
	}
	if dec.RoleLevel < rule.MinLevel {
		return false
	}
	if rule.RequiredPermission != "" && !dec.Permissions.Has(rule.RequiredPermission) {
		return false
	}
	return true
}

// IsTransitionAllowed reports whether the transition from -> to is allowed for
// the given decision inputs. Missing or inactive rules deny; a rule-source
// failure also denies, since the store already exhausted its fallbacks.
func (g *Gate) IsTransitionAllowed(ctx context.Context, from, to Status, dec Decision) bool {
	rule, ok, err := g.rules.Get(ctx, from, to)
	if err != nil {
		if g.logger != nil {
			g.logger.Error("transition rule lookup", slog.String("from", string(from)), slog.String("to", string(to)), slog.Any("error", err))
		}
		return false
	}
	if !ok {
		return false
	}
	return ruleAllows(rule, dec)
}

// AllowedTransitions lists the active rules out of the given status that the
// decision inputs satisfy, ordered by sort order.
func (g *Gate) AllowedTransitions(ctx context.Context, from Status, dec Decision) []TransitionRule {
	rules, err := g.rules.ListByFrom(ctx, from)
	if err != nil {
		if g.logger != nil {
			g.logger.Error("transition rule listing", slog.String("from", string(from)), slog.Any("error", err))
		}
		return nil
	}
	allowed := make([]TransitionRule, 0, len(rules))
	for _, rule := range rules {
		if ruleAllows(rule, dec) {
			allowed = append(allowed, rule)
		}
	}
	sort.SliceStable(allowed, func(i, j int) bool {
		return allowed[i].SortOrder < allowed[j].SortOrder
	})
	return allowed
}
