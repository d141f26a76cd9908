package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/docuvault/docuvault/internal/authz"
)

// RuleGate lists allowed transitions. Implemented by authz.Gate.
type RuleGate interface {
	AllowedTransitions(ctx context.Context, from authz.Status, dec authz.Decision) []authz.TransitionRule
}

// TransitionsCLI reports the transitions a user could apply from a status.
type TransitionsCLI struct {
	grants GrantSource
	gate   RuleGate
}

// NewTransitionsCLI constructs the helper.
func NewTransitionsCLI(grants GrantSource, gate RuleGate) *TransitionsCLI {
	return &TransitionsCLI{grants: grants, gate: gate}
}

// TransitionsOptions defines available flags for the transitions command.
type TransitionsOptions struct {
	UserID     int64
	FromStatus string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// TransitionEntry is one allowed transition in the output.
type TransitionEntry struct {
	ToStatus           string `json:"to_status"`
	MinLevel           int    `json:"min_level"`
	RequiredPermission string `json:"required_permission,omitempty"`
}

// TransitionsSummary describes the JSON output for transitions.
type TransitionsSummary struct {
	UserID     int64             `json:"user_id"`
	FromStatus string            `json:"from_status"`
	RoleLevel  int               `json:"role_level"`
	Bypass     bool              `json:"full_module_bypass"`
	Allowed    []TransitionEntry `json:"allowed"`
}

// Command lists the allowed transitions and prints the outcome.
func (c *TransitionsCLI) Command(ctx context.Context, opts TransitionsOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.UserID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "transitions: --user is required and must be positive")
		return 1
	}
	from, ok := authz.ParseStatus(opts.FromStatus)
	if !ok {
		_, _ = fmt.Fprintf(opts.Stderr, "transitions: unknown status %q\n", opts.FromStatus)
		return 1
	}

	grants, err := c.grants.GrantsFor(ctx, opts.UserID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "transitions: load grants: %v\n", err)
		return 1
	}
	dec := authz.DecisionFor(grants)
	rules := c.gate.AllowedTransitions(ctx, from, dec)

	summary := TransitionsSummary{
		UserID:     opts.UserID,
		FromStatus: string(from),
		RoleLevel:  dec.RoleLevel,
		Bypass:     dec.FullModuleBypass,
		Allowed:    make([]TransitionEntry, 0, len(rules)),
	}
	for _, rule := range rules {
		summary.Allowed = append(summary.Allowed, TransitionEntry{
			ToStatus:           string(rule.ToStatus),
			MinLevel:           rule.MinLevel,
			RequiredPermission: rule.RequiredPermission,
		})
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "transitions: encode json: %v\n", err)
			return 1
		}
		return 0
	}

	_, _ = fmt.Fprintf(opts.Stdout, "Allowed transitions from %s for user %d (level %d", summary.FromStatus, summary.UserID, summary.RoleLevel)
	if summary.Bypass {
		_, _ = fmt.Fprint(opts.Stdout, ", full module access")
	}
	_, _ = fmt.Fprintln(opts.Stdout, "):")
	if len(summary.Allowed) == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, " (none)")
		return 0
	}
	for _, entry := range summary.Allowed {
		if entry.RequiredPermission != "" {
			_, _ = fmt.Fprintf(opts.Stdout, " -> %s (min level %d, requires %s)\n", entry.ToStatus, entry.MinLevel, entry.RequiredPermission)
		} else {
			_, _ = fmt.Fprintf(opts.Stdout, " -> %s (min level %d)\n", entry.ToStatus, entry.MinLevel)
		}
	}
	return 0
}
