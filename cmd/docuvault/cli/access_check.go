package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/docuvault/docuvault/internal/authz"
	"github.com/docuvault/docuvault/internal/documents"
)

// GrantSource resolves a user's effective grants. Implemented by
// authz.Service.
type GrantSource interface {
	GrantsFor(ctx context.Context, userID int64) (authz.GrantSet, error)
	ExplainPermission(ctx context.Context, userID int64, permission string) (authz.PermissionExplanation, error)
}

// DocumentSource loads document records. Implemented by
// documents.Repository.
type DocumentSource interface {
	Get(ctx context.Context, id string) (documents.Document, error)
}

// AccessCheckCLI evaluates document access for a user the same way the HTTP
// layer does, with a per-condition breakdown for operators.
type AccessCheckCLI struct {
	grants GrantSource
	docs   DocumentSource
}

// NewAccessCheckCLI constructs the helper.
func NewAccessCheckCLI(grants GrantSource, docs DocumentSource) *AccessCheckCLI {
	return &AccessCheckCLI{grants: grants, docs: docs}
}

// AccessCheckOptions defines available flags for the access-check command.
type AccessCheckOptions struct {
	UserID     int64
	DocumentID string
	GroupID    string
	GroupName  string
	Permission string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// AccessCondition is one branch of the access disjunction.
type AccessCondition struct {
	Name   string `json:"name"`
	Met    bool   `json:"met"`
	Detail string `json:"detail,omitempty"`
}

// AccessCheckSummary describes the JSON output for access-check.
type AccessCheckSummary struct {
	DocumentID      string            `json:"document_id"`
	UserID          int64             `json:"user_id"`
	Allowed         bool              `json:"allowed"`
	Conditions      []AccessCondition `json:"conditions"`
	Permission      string            `json:"permission,omitempty"`
	PermissionState map[string]string `json:"permission_states,omitempty"`
	PermissionOK    *bool             `json:"permission_granted,omitempty"`
}

// Command runs the access check and prints the outcome.
func (c *AccessCheckCLI) Command(ctx context.Context, opts AccessCheckOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.UserID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "access-check: --user is required and must be positive")
		return 1
	}
	if opts.DocumentID == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "access-check: --document is required")
		return 1
	}

	doc, err := c.docs.Get(ctx, opts.DocumentID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "access-check: load document: %v\n", err)
		return 1
	}
	grants, err := c.grants.GrantsFor(ctx, opts.UserID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "access-check: load grants: %v\n", err)
		return 1
	}

	subject := authz.Subject{
		UserID:       opts.UserID,
		GroupID:      opts.GroupID,
		GroupName:    opts.GroupName,
		RoleNames:    grants.RoleNames,
		Capabilities: grants.Capabilities,
	}
	summary := buildAccessSummary(doc, subject)

	if opts.Permission != "" {
		explanation, err := c.grants.ExplainPermission(ctx, opts.UserID, opts.Permission)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "access-check: explain permission: %v\n", err)
			return 1
		}
		summary.Permission = explanation.Permission
		summary.PermissionState = make(map[string]string, len(explanation.States))
		for roleID, state := range explanation.States {
			summary.PermissionState[strconv.FormatInt(roleID, 10)] = state.String()
		}
		granted := explanation.Granted
		summary.PermissionOK = &granted
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "access-check: encode json: %v\n", err)
			return 1
		}
	} else {
		renderAccessHuman(opts.Stdout, summary)
	}
	if !summary.Allowed {
		return 10
	}
	return 0
}

func buildAccessSummary(doc documents.Document, subject authz.Subject) AccessCheckSummary {
	descriptor := doc.Descriptor()

	matchedRole := ""
	for _, roleName := range subject.RoleNames {
		if roleName != "" && contains(descriptor.AccessGroups, roleName) {
			matchedRole = roleName
			break
		}
	}
	capabilityBypass := subject.Capabilities.Has(authz.CapabilityAdminAccess) ||
		subject.Capabilities.Has(authz.CapabilityDocumentFullAccess)

	conditions := []AccessCondition{
		{Name: "public", Met: descriptor.IsPublic},
		{Name: "owner", Met: descriptor.CreatedByID != 0 && descriptor.CreatedByID == subject.UserID,
			Detail: "created_by=" + strconv.FormatInt(descriptor.CreatedByID, 10)},
		{Name: "group_id", Met: subject.GroupID != "" && contains(descriptor.AccessGroups, subject.GroupID)},
		{Name: "group_name", Met: subject.GroupName != "" && contains(descriptor.AccessGroups, subject.GroupName)},
		{Name: "role_name", Met: matchedRole != "", Detail: matchedRole},
		{Name: "capability", Met: capabilityBypass},
	}

	return AccessCheckSummary{
		DocumentID: descriptor.ID,
		UserID:     subject.UserID,
		Allowed:    authz.CanAccessDocument(descriptor, subject),
		Conditions: conditions,
	}
}

func renderAccessHuman(out io.Writer, summary AccessCheckSummary) {
	verdict := "DENIED"
	if summary.Allowed {
		verdict = "ALLOWED"
	}
	_, _ = fmt.Fprintf(out, "Access for user %d on document %s: %s\n", summary.UserID, summary.DocumentID, verdict)
	for _, cond := range summary.Conditions {
		mark := " "
		if cond.Met {
			mark = "x"
		}
		if cond.Detail != "" {
			_, _ = fmt.Fprintf(out, " [%s] %s (%s)\n", mark, cond.Name, cond.Detail)
		} else {
			_, _ = fmt.Fprintf(out, " [%s] %s\n", mark, cond.Name)
		}
	}
	if summary.Permission != "" && summary.PermissionOK != nil {
		state := "denied"
		if *summary.PermissionOK {
			state = "granted"
		}
		_, _ = fmt.Fprintf(out, "Permission %s: %s\n", summary.Permission, state)
		for roleID, roleState := range summary.PermissionState {
			_, _ = fmt.Fprintf(out, " - role %s: %s\n", roleID, roleState)
		}
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
