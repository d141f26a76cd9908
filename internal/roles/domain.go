package roles

import (
	"time"

	"github.com/docuvault/docuvault/internal/authz"
)

// Role is the administrative view of a role.
type Role struct {
	ID          int64
	Name        string
	DisplayName string
	Level       int
	IsSystem    bool
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is the administrative view of a permission.
type Permission struct {
	ID     int64
	Name   string
	Module string
	Action string
}

// Capability is the administrative view of a capability.
type Capability struct {
	ID          int64
	Name        string
	Description string
	Category    string
}

// GrantUpdate sets the grant state of one permission on a role. Granted and
// denied write a row; absent removes it.
type GrantUpdate struct {
	PermissionID int64
	State        authz.GrantState
}

// RoleInput is the payload for creating or updating a role.
type RoleInput struct {
	Name        string `json:"name" validate:"required,min=3,max=100"`
	DisplayName string `json:"display_name" validate:"required,max=200"`
	Level       int    `json:"level" validate:"gte=0,lte=100"`
	IsActive    bool   `json:"is_active"`
}
