package authz

import "time"

// Role is a canonical role with a numeric authority level.
type Role struct {
	ID          int64
	Name        string
	DisplayName string
	Level       int
	IsSystem    bool
	IsActive    bool
}

// Permission is a fine-grained module.action grant target.
type Permission struct {
	ID     int64
	Name   string
	Module string
	Action string
}

// Capability is a coarse role-level access flag. Capabilities have no deny
// state; presence of an assignment means granted.
type Capability struct {
	ID          int64
	Name        string
	Description string
	Category    string
}

// GrantState is the three-valued state of a permission on a role. The data
// layer keeps explicit denies distinct from missing rows so a denial can be
// traced back to its cause; aggregation collapses both to "not granted".
type GrantState int

const (
	// GrantAbsent means no grant row exists for the (role, permission) pair.
	GrantAbsent GrantState = iota
	// GrantAllowed means an is_granted=true row exists.
	GrantAllowed
	// GrantDenied means an explicit is_granted=false row exists.
	GrantDenied
)

// String returns the state label used in explain output.
func (s GrantState) String() string {
	switch s {
	case GrantAllowed:
		return "granted"
	case GrantDenied:
		return "denied"
	default:
		return "absent"
	}
}

// RoleGrant is one (role, permission) row with its grant state.
type RoleGrant struct {
	RoleID         int64
	PermissionName string
	State          GrantState
}

// UserRoleAssignment links a user to a role.
type UserRoleAssignment struct {
	UserID     int64
	RoleID     int64
	IsActive   bool
	AssignedAt time.Time
}

// Status is a document workflow state.
type Status string

// Document statuses. The gate itself hardcodes nothing about the graph;
// these are the vocabulary the configured rules speak.
const (
	StatusDraft           Status = "DRAFT"
	StatusPendingReview   Status = "PENDING_REVIEW"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusPublished       Status = "PUBLISHED"
	StatusArchived        Status = "ARCHIVED"
	StatusExpired         Status = "EXPIRED"
)

// ParseStatus maps a raw string to a known status. Unknown values are
// rejected rather than passed through.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusDraft, StatusPendingReview, StatusPendingApproval, StatusApproved,
		StatusRejected, StatusPublished, StatusArchived, StatusExpired:
		return Status(raw), true
	}
	return "", false
}

// TransitionRule is one configured edge in the status state machine.
// (FromStatus, ToStatus) is unique across the rule set.
type TransitionRule struct {
	FromStatus         Status
	ToStatus           Status
	MinLevel           int
	RequiredPermission string
	IsActive           bool
	SortOrder          int
}

// DocumentDescriptor is the access-relevant projection of a document.
// AccessGroups is a flat list that may hold group ids, group display names,
// or role names interchangeably; the evaluator matches all three.
type DocumentDescriptor struct {
	ID           string
	CreatedByID  int64
	IsPublic     bool
	AccessGroups []string
}

// Capability names honoured by the document access bypass.
const (
	CapabilityAdminAccess        = "ADMIN_ACCESS"
	CapabilityDocumentFullAccess = "DOCUMENT_FULL_ACCESS"
	CapabilityReportAccess       = "REPORT_ACCESS"
)

// ModuleDocuments is the module prefix for document permissions.
const ModuleDocuments = "documents"

// Document permissions declared for the engine.
const (
	PermDocumentsRead    = "documents.read"
	PermDocumentsCreate  = "documents.create"
	PermDocumentsUpdate  = "documents.update"
	PermDocumentsApprove = "documents.approve"
	PermDocumentsDelete  = "documents.delete"
	PermDocumentsPublish = "documents.publish"

	PermRolesView    = "roles.view"
	PermRolesEdit    = "roles.edit"
	PermWorkflowView = "workflow.view"
	PermWorkflowEdit = "workflow.edit"
	PermAuditView    = "audit.view"
)

// DocumentCoreActions are the actions that together constitute full access to
// the documents module. Holding all of them bypasses level-based workflow
// gating.
func DocumentCoreActions() []string {
	return []string{"read", "create", "update", "approve", "delete"}
}

// PermissionSet is a set of permission names.
type PermissionSet map[string]struct{}

// CapabilitySet is a set of capability names.
type CapabilitySet map[string]struct{}

// Has reports whether the permission is in the set.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Has reports whether the capability is in the set.
func (s CapabilitySet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// GrantSet is the aggregated authorization state of one user, computed once
// per request and passed to the decision functions.
type GrantSet struct {
	RoleIDs      []int64
	RoleNames    []string
	MaxLevel     int
	Permissions  PermissionSet
	Capabilities CapabilitySet
	// FullDocumentAccess is the full-module bypass for the documents module,
	// computed once so every check in the request sees the same answer.
	FullDocumentAccess bool
}

// Subject carries the caller-side inputs of a document access decision.
type Subject struct {
	UserID       int64
	GroupID      string
	GroupName    string
	RoleNames    []string
	Capabilities CapabilitySet
}
