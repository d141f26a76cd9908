package documents

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/docuvault/docuvault/internal/authz"
	"github.com/docuvault/docuvault/internal/platform/httpx"
	"github.com/docuvault/docuvault/internal/shared"
)

// Handler exposes document listing and transition endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	guard    authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard authz.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		guard:    guard,
	}
}

// MountRoutes registers document routes. Listing and reading require
// documents.read; transitions are decided per rule by the gate, so the route
// guard only checks the base permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(authz.PermDocumentsRead))
		r.Get("/", h.list)
		r.Get("/{documentID}", h.get)
		r.Get("/{documentID}/history", h.history)
		r.Get("/{documentID}/transitions", h.allowedTransitions)
		r.Post("/{documentID}/transitions", h.applyTransition)
	})
}

type documentResponse struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	CreatedByID  int64    `json:"created_by_id"`
	IsPublic     bool     `json:"is_public"`
	AccessGroups []string `json:"access_groups"`
	Status       string   `json:"status"`
	ExpiresAt    *string  `json:"expires_at,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func toDocumentResponse(doc Document) documentResponse {
	out := documentResponse{
		ID:           doc.ID,
		Title:        doc.Title,
		CreatedByID:  doc.CreatedByID,
		IsPublic:     doc.IsPublic,
		AccessGroups: doc.AccessGroups,
		Status:       string(doc.Status),
		CreatedAt:    doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    doc.UpdatedAt.Format(time.RFC3339),
	}
	if doc.ExpiresAt != nil {
		formatted := doc.ExpiresAt.Format(time.RFC3339)
		out.ExpiresAt = &formatted
	}
	return out
}

type transitionResponse struct {
	ToStatus           string `json:"to_status"`
	MinLevel           int    `json:"min_level"`
	RequiredPermission string `json:"required_permission,omitempty"`
	SortOrder          int    `json:"sort_order"`
}

type historyResponse struct {
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	ActorID    int64  `json:"actor_id"`
	Note       string `json:"note,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	query := ListQuery{
		Status:  strings.TrimSpace(r.URL.Query().Get("status")),
		Page:    queryInt(r, "page"),
		PerPage: queryInt(r, "per_page"),
	}
	docs, page, err := h.service.List(r.Context(), h.viewer(r), query)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]documentResponse, len(docs))
	for i, doc := range docs {
		out[i] = toDocumentResponse(doc)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"documents": out,
		"pagination": map[string]int{
			"page":        page.Page,
			"per_page":    page.PerPage,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		},
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), h.viewer(r), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	records, err := h.service.History(r.Context(), h.viewer(r), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]historyResponse, len(records))
	for i, rec := range records {
		out[i] = historyResponse{
			FromStatus: string(rec.FromStatus),
			ToStatus:   string(rec.ToStatus),
			ActorID:    rec.ActorID,
			Note:       rec.Note,
			OccurredAt: rec.OccurredAt.Format(time.RFC3339),
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"history": out})
}

func (h *Handler) allowedTransitions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rules, err := h.service.AllowedTransitions(r.Context(), h.viewer(r), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]transitionResponse, len(rules))
	for i, rule := range rules {
		out[i] = transitionResponse{
			ToStatus:           string(rule.ToStatus),
			MinLevel:           rule.MinLevel,
			RequiredPermission: rule.RequiredPermission,
			SortOrder:          rule.SortOrder,
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transitions": out})
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var input TransitionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed payload")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	doc, err := h.service.ApplyTransition(r.Context(), h.viewer(r), id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "documentID")
	if _, err := uuid.Parse(raw); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid document id")
		return "", false
	}
	return raw, true
}

func (h *Handler) viewer(r *http.Request) Viewer {
	viewer := Viewer{}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return viewer
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64); err == nil {
		viewer.UserID = id
	}
	viewer.GroupID = sess.GroupID()
	viewer.GroupName = sess.GroupName()
	return viewer
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, ErrTransitionNotAllowed):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrStatusChanged):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("documents handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}
