package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuvault/docuvault/internal/authz"
	"github.com/docuvault/docuvault/internal/documents"
	"github.com/docuvault/docuvault/internal/shared"
)

type stubGrantSource struct {
	grants      map[int64]authz.GrantSet
	explanation authz.PermissionExplanation
}

func (s stubGrantSource) GrantsFor(ctx context.Context, userID int64) (authz.GrantSet, error) {
	return s.grants[userID], nil
}

func (s stubGrantSource) ExplainPermission(ctx context.Context, userID int64, permission string) (authz.PermissionExplanation, error) {
	return s.explanation, nil
}

type stubDocSource struct {
	docs map[string]documents.Document
}

func (s stubDocSource) Get(ctx context.Context, id string) (documents.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return documents.Document{}, shared.ErrNotFound
	}
	return doc, nil
}

const testDocID = "11111111-1111-1111-1111-111111111111"

func newAccessFixture(doc documents.Document, grants authz.GrantSet) *AccessCheckCLI {
	return NewAccessCheckCLI(
		stubGrantSource{grants: map[int64]authz.GrantSet{1: grants}},
		stubDocSource{docs: map[string]documents.Document{doc.ID: doc}},
	)
}

func TestAccessCheckOwnerAllowed(t *testing.T) {
	cli := newAccessFixture(
		documents.Document{ID: testDocID, CreatedByID: 1},
		authz.GrantSet{RoleNames: []string{"docuvault.viewer"}},
	)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), AccessCheckOptions{
		UserID:     1,
		DocumentID: testDocID,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary AccessCheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.Allowed)

	byName := map[string]AccessCondition{}
	for _, cond := range summary.Conditions {
		byName[cond.Name] = cond
	}
	require.True(t, byName["owner"].Met)
	require.False(t, byName["public"].Met)
	require.False(t, byName["capability"].Met)
}

func TestAccessCheckDeniedExitCode(t *testing.T) {
	cli := newAccessFixture(
		documents.Document{ID: testDocID, CreatedByID: 2, AccessGroups: []string{"legal"}},
		authz.GrantSet{RoleNames: []string{"docuvault.viewer"}},
	)

	stdout := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), AccessCheckOptions{
		UserID:     1,
		DocumentID: testDocID,
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Equal(t, 10, exitCode)

	var summary AccessCheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.False(t, summary.Allowed)
}

func TestAccessCheckGroupNameMatch(t *testing.T) {
	cli := newAccessFixture(
		documents.Document{ID: testDocID, CreatedByID: 2, AccessGroups: []string{"legal"}},
		authz.GrantSet{},
	)

	stdout := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), AccessCheckOptions{
		UserID:     1,
		DocumentID: testDocID,
		GroupName:  "legal",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Zero(t, exitCode)

	var summary AccessCheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.Allowed)
}

func TestAccessCheckPermissionExplanation(t *testing.T) {
	cli := NewAccessCheckCLI(
		stubGrantSource{
			grants: map[int64]authz.GrantSet{1: {}},
			explanation: authz.PermissionExplanation{
				Permission: "documents.approve",
				States:     map[int64]authz.GrantState{4: authz.GrantAllowed, 5: authz.GrantDenied},
				Granted:    true,
			},
		},
		stubDocSource{docs: map[string]documents.Document{testDocID: {ID: testDocID, CreatedByID: 1}}},
	)

	stdout := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), AccessCheckOptions{
		UserID:     1,
		DocumentID: testDocID,
		Permission: "documents.approve",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Zero(t, exitCode)

	var summary AccessCheckSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "documents.approve", summary.Permission)
	require.NotNil(t, summary.PermissionOK)
	require.True(t, *summary.PermissionOK)
	require.Equal(t, "granted", summary.PermissionState["4"])
	require.Equal(t, "denied", summary.PermissionState["5"])
}

func TestAccessCheckMissingFlags(t *testing.T) {
	cli := newAccessFixture(documents.Document{ID: testDocID}, authz.GrantSet{})

	stderr := new(bytes.Buffer)
	exitCode := cli.Command(context.Background(), AccessCheckOptions{
		UserID: 0,
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "--user is required")
}
