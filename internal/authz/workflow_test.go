package authz

import (
	"context"
	"testing"
)

type fakeRuleSource struct {
	rules []TransitionRule
	err   error
}

func (f *fakeRuleSource) Get(ctx context.Context, from, to Status) (TransitionRule, bool, error) {
	if f.err != nil {
		return TransitionRule{}, false, f.err
	}
	for _, rule := range f.rules {
		if rule.FromStatus == from && rule.ToStatus == to {
			return rule, true, nil
		}
	}
	return TransitionRule{}, false, nil
}

func (f *fakeRuleSource) ListByFrom(ctx context.Context, from Status) ([]TransitionRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []TransitionRule
	for _, rule := range f.rules {
		if rule.FromStatus == from {
			out = append(out, rule)
		}
	}
	return out, nil
}

func editorDecision() Decision {
	return Decision{
		RoleLevel: 50,
		Permissions: PermissionSet{
			PermDocumentsRead:    {},
			PermDocumentsUpdate:  {},
			PermDocumentsApprove: {},
		},
	}
}

func TestIsTransitionAllowedLevelMet(t *testing.T) {
	gate := NewGate(&fakeRuleSource{rules: []TransitionRule{
		{FromStatus: StatusDraft, ToStatus: StatusPendingReview, MinLevel: 50, RequiredPermission: PermDocumentsUpdate, IsActive: true},
	}}, nil)

	if !gate.IsTransitionAllowed(context.Background(), StatusDraft, StatusPendingReview, editorDecision()) {
		t.Fatal("editor at level 50 must pass a min-level-50 rule")
	}
}

func TestIsTransitionAllowedLevelTooLow(t *testing.T) {
	gate := NewGate(&fakeRuleSource{rules: []TransitionRule{
		{FromStatus: StatusApproved, ToStatus: StatusPublished, MinLevel: 100, RequiredPermission: PermDocumentsPublish, IsActive: true},
	}}, nil)

	if gate.IsTransitionAllowed(context.Background(), StatusApproved, StatusPublished, editorDecision()) {
		t.Fatal("level 50 must not pass a min-level-100 rule")
	}
}

func TestIsTransitionAllowedFullModuleBypass(t *testing.T) {
	gate := NewGate(&fakeRuleSource{rules: []TransitionRule{
		{FromStatus: StatusApproved, ToStatus: StatusPublished, MinLevel: 100, RequiredPermission: PermDocumentsPublish, IsActive: true},
	}}, nil)

	dec := editorDecision()
	dec.FullModuleBypass = true
	if !gate.IsTransitionAllowed(context.Background(), StatusApproved, StatusPublished, dec) {
		t.Fatal("full-module bypass must override level and permission gating")
	}
}

func TestIsTransitionAllowedMissingRuleDenies(t *testing.T) {
	gate := NewGate(&fakeRuleSource{}, nil)

	dec := Decision{RoleLevel: 100, FullModuleBypass: true}
	if gate.IsTransitionAllowed(context.Background(), StatusArchived, StatusDraft, dec) {
		t.Fatal("missing rule must deny even with bypass")
	}
}

func TestIsTransitionAllowedInactiveRuleDenies(t *testing.T) {
	gate := NewGate(&fakeRuleSource{rules: []TransitionRule{
		{FromStatus: StatusDraft, ToStatus: StatusPendingReview, MinLevel: 0, IsActive: false},
	}}, nil)

	if gate.IsTransitionAllowed(context.Background(), StatusDraft, StatusPendingReview, Decision{RoleLevel: 100}) {
		t.Fatal("inactive rule must deny")
	}
}

func TestIsTransitionAllowedRequiredPermissionMissing(t *testing.T) {
	gate := NewGate(&fakeRuleSource{rules: []TransitionRule{
		{FromStatus: StatusApproved, ToStatus: StatusPublished, MinLevel: 50, RequiredPermission: PermDocumentsPublish, IsActive: true},
	}}, nil)

	if gate.IsTransitionAllowed(context.Background(), StatusApproved, StatusPublished, editorDecision()) {
		t.Fatal("missing required permission must deny even when level suffices")
	}
}

func TestIsTransitionAllowedNoRequiredPermission(t *testing.T) {
	gate := NewGate(&fakeRuleSource{rules: []TransitionRule{
		{FromStatus: StatusPublished, ToStatus: StatusExpired, MinLevel: 50, IsActive: true},
	}}, nil)

	dec := Decision{RoleLevel: 50, Permissions: PermissionSet{}}
	if !gate.IsTransitionAllowed(context.Background(), StatusPublished, StatusExpired, dec) {
		t.Fatal("rule without required permission must gate on level alone")
	}
}

func TestAllowedTransitionsFiltersAndSorts(t *testing.T) {
	gate := NewGate(&fakeRuleSource{rules: []TransitionRule{
		{FromStatus: StatusPendingReview, ToStatus: StatusRejected, MinLevel: 50, RequiredPermission: PermDocumentsApprove, IsActive: true, SortOrder: 40},
		{FromStatus: StatusPendingReview, ToStatus: StatusDraft, MinLevel: 30, RequiredPermission: PermDocumentsUpdate, IsActive: true, SortOrder: 20},
		{FromStatus: StatusPendingReview, ToStatus: StatusPendingApproval, MinLevel: 70, RequiredPermission: PermDocumentsApprove, IsActive: true, SortOrder: 30},
		{FromStatus: StatusPendingReview, ToStatus: StatusArchived, MinLevel: 10, IsActive: false, SortOrder: 10},
	}}, nil)

	allowed := gate.AllowedTransitions(context.Background(), StatusPendingReview, editorDecision())
	if len(allowed) != 2 {
		t.Fatalf("expected 2 allowed transitions, got %d", len(allowed))
	}
	if allowed[0].ToStatus != StatusDraft || allowed[1].ToStatus != StatusRejected {
		t.Fatalf("expected sort-order listing, got %v -> %v", allowed[0].ToStatus, allowed[1].ToStatus)
	}
}

func TestGateRuleSourceFailureDenies(t *testing.T) {
	gate := NewGate(&fakeRuleSource{err: context.DeadlineExceeded}, nil)

	if gate.IsTransitionAllowed(context.Background(), StatusDraft, StatusPendingReview, Decision{RoleLevel: 100, FullModuleBypass: true}) {
		t.Fatal("rule source failure must deny")
	}
	if transitions := gate.AllowedTransitions(context.Background(), StatusDraft, Decision{RoleLevel: 100}); transitions != nil {
		t.Fatalf("expected nil transitions on failure, got %v", transitions)
	}
}
