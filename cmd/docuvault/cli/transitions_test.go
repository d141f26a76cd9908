package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/internal/authz"
)

type stubRuleSource struct {
	rules []authz.TransitionRule
}

func (s stubRuleSource) Get(ctx context.Context, from, to authz.Status) (authz.TransitionRule, bool, error) {
	for _, rule := range s.rules {
		if rule.FromStatus == from && rule.ToStatus == to {
			return rule, true, nil
		}
	}
	return authz.TransitionRule{}, false, nil
}

func (s stubRuleSource) ListByFrom(ctx context.Context, from authz.Status) ([]authz.TransitionRule, error) {
	var out []authz.TransitionRule
	for _, rule := range s.rules {
		if rule.FromStatus == from {
			out = append(out, rule)
		}
	}
	return out, nil
}

func newTransitionsFixture(grants authz.GrantSet, rules []authz.TransitionRule) *TransitionsCLI {
	gate := authz.NewGate(stubRuleSource{rules: rules}, nil)
	return NewTransitionsCLI(stubGrantSource{grants: map[int64]authz.GrantSet{1: grants}}, gate)
}

func TestTransitionsCommand(t *testing.T) {
	grants := authz.GrantSet{
		MaxLevel: 50,
		Permissions: authz.PermissionSet{
			"documents.update": {},
		},
	}
	rules := []authz.TransitionRule{
		{FromStatus: authz.StatusDraft, ToStatus: authz.StatusPendingReview, MinLevel: 30, RequiredPermission: "documents.update", IsActive: true, SortOrder: 10},
		{FromStatus: authz.StatusDraft, ToStatus: authz.StatusArchived, MinLevel: 100, IsActive: true, SortOrder: 20},
	}
	cli := newTransitionsFixture(grants, rules)

	stdout := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), TransitionsOptions{
		UserID:     1,
		FromStatus: "DRAFT",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Zero(t, exitCode)

	var summary TransitionsSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "DRAFT", summary.FromStatus)
	require.Equal(t, 50, summary.RoleLevel)
	require.Len(t, summary.Allowed, 1)
	require.Equal(t, "PENDING_REVIEW", summary.Allowed[0].ToStatus)
}

func TestTransitionsBypassSeesEverything(t *testing.T) {
	grants := authz.GrantSet{MaxLevel: 30, FullDocumentAccess: true}
	rules := []authz.TransitionRule{
		{FromStatus: authz.StatusDraft, ToStatus: authz.StatusPendingReview, MinLevel: 30, IsActive: true, SortOrder: 10},
		{FromStatus: authz.StatusDraft, ToStatus: authz.StatusArchived, MinLevel: 100, IsActive: true, SortOrder: 20},
	}
	cli := newTransitionsFixture(grants, rules)

	stdout := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), TransitionsOptions{
		UserID:     1,
		FromStatus: "DRAFT",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Zero(t, exitCode)

	var summary TransitionsSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.Bypass)
	require.Len(t, summary.Allowed, 2)
}

func TestTransitionsUnknownStatus(t *testing.T) {
	cli := newTransitionsFixture(authz.GrantSet{}, nil)

	stderr := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), TransitionsOptions{
		UserID:     1,
		FromStatus: "LIMBO",
		Stdout:     new(bytes.Buffer),
		Stderr:     stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "unknown status")
}
