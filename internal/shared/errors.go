package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrInvalidInput indicates a malformed identifier or payload. Rejected
	// inputs never default to an allow decision.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSystemRole indicates an attempt to mutate or delete a system role.
	ErrSystemRole = errors.New("system role is immutable")
	// ErrForbidden indicates the caller is not allowed to see or change the
	// resource.
	ErrForbidden = errors.New("forbidden")
)
