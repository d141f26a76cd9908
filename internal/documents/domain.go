package documents

import (
	"time"

	"github.com/docuvault/docuvault/internal/authz"
)

// Document is the stored record with its lifecycle state.
type Document struct {
	ID           string
	Title        string
	CreatedByID  int64
	IsPublic     bool
	AccessGroups []string
	Status       authz.Status
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Descriptor projects the document into its access-relevant fields.
func (d Document) Descriptor() authz.DocumentDescriptor {
	return authz.DocumentDescriptor{
		ID:           d.ID,
		CreatedByID:  d.CreatedByID,
		IsPublic:     d.IsPublic,
		AccessGroups: d.AccessGroups,
	}
}

// TransitionRecord is one entry in a document's transition history.
type TransitionRecord struct {
	ID         int64
	DocumentID string
	FromStatus authz.Status
	ToStatus   authz.Status
	ActorID    int64
	Note       string
	OccurredAt time.Time
}

// TransitionInput is the payload for applying a transition.
type TransitionInput struct {
	ToStatus       string `json:"to_status" validate:"required,oneof=DRAFT PENDING_REVIEW PENDING_APPROVAL APPROVED REJECTED PUBLISHED ARCHIVED EXPIRED"`
	Note           string `json:"note" validate:"omitempty,max=500"`
	IdempotencyKey string `json:"idempotency_key" validate:"omitempty,max=100"`
}

// ListQuery narrows a document listing. Status is optional.
type ListQuery struct {
	Status  string
	Page    int
	PerPage int
}
