package workflow

import (
	"time"

	"github.com/docuvault/docuvault/internal/authz"
)

// Rule is the administrative view of a transition rule. The engine reads the
// same rows through the rule store; this type carries the editing metadata.
type Rule struct {
	ID                 int64
	FromStatus         authz.Status
	ToStatus           authz.Status
	MinLevel           int
	RequiredPermission string
	IsActive           bool
	SortOrder          int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RuleInput is the payload for creating or updating a rule.
type RuleInput struct {
	FromStatus         string `json:"from_status" validate:"required,oneof=DRAFT PENDING_REVIEW PENDING_APPROVAL APPROVED REJECTED PUBLISHED ARCHIVED EXPIRED"`
	ToStatus           string `json:"to_status" validate:"required,oneof=DRAFT PENDING_REVIEW PENDING_APPROVAL APPROVED REJECTED PUBLISHED ARCHIVED EXPIRED"`
	MinLevel           int    `json:"min_level" validate:"gte=0,lte=100"`
	RequiredPermission string `json:"required_permission" validate:"omitempty,max=100"`
	IsActive           bool   `json:"is_active"`
	SortOrder          int    `json:"sort_order" validate:"gte=0"`
}
