package authz

import (
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/docuvault/docuvault/internal/shared"
)

// DecisionRecorder counts authorization decisions. Implemented by the
// observability metrics; optional.
type DecisionRecorder interface {
	AuthzDecision(decision string)
}

// Middleware wires the decision engine into HTTP handlers.
type Middleware struct {
	Service  *Service
	Logger   *slog.Logger
	Recorder DecisionRecorder
}

// RequireAny ensures the current user holds at least one of the required
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			grants, ok := m.resolveGrants(w, r)
			if !ok {
				return
			}
			for _, perm := range normalized {
				if grants.Permissions.Has(perm) {
					m.allow(next, w, r, grants)
					return
				}
			}
			m.deny(w)
		})
	}
}

// RequireAll ensures the current user holds every required permission.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			grants, ok := m.resolveGrants(w, r)
			if !ok {
				return
			}
			for _, perm := range normalized {
				if !grants.Permissions.Has(perm) {
					m.deny(w)
					return
				}
			}
			m.allow(next, w, r, grants)
		})
	}
}

// RequireLevel ensures the current user's highest role level meets the
// minimum.
func (m Middleware) RequireLevel(minLevel int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grants, ok := m.resolveGrants(w, r)
			if !ok {
				return
			}
			if grants.MaxLevel < minLevel {
				m.deny(w)
				return
			}
			m.allow(next, w, r, grants)
		})
	}
}

// RequireCapability ensures the current user holds the named capability.
func (m Middleware) RequireCapability(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grants, ok := m.resolveGrants(w, r)
			if !ok {
				return
			}
			if !grants.Capabilities.Has(name) {
				m.deny(w)
				return
			}
			m.allow(next, w, r, grants)
		})
	}
}

func (m Middleware) resolveGrants(w http.ResponseWriter, r *http.Request) (GrantSet, bool) {
	if grants, ok := GrantsFromContext(r.Context()); ok {
		return grants, true
	}
	userID, ok := m.currentUserID(r)
	if !ok {
		m.deny(w)
		return GrantSet{}, false
	}
	grants, err := m.Service.GrantsFor(r.Context(), userID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("resolve grants", slog.Any("error", err))
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return GrantSet{}, false
	}
	return grants, true
}

func (m Middleware) allow(next http.Handler, w http.ResponseWriter, r *http.Request, grants GrantSet) {
	if m.Recorder != nil {
		m.Recorder.AuthzDecision("allow")
	}
	next.ServeHTTP(w, r.WithContext(ContextWithGrants(r.Context(), grants)))
}

func (m Middleware) deny(w http.ResponseWriter) {
	if m.Recorder != nil {
		m.Recorder.AuthzDecision("deny")
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("parse session user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}
