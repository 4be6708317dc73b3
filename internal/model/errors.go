package model

import (
	"errors"
	"fmt"
)

// Error taxonomy. Handlers map these to HTTP codes; services wrap them
// with context via fmt.Errorf("...: %w", err).
var (
	// ErrUnauthorized: bad credentials or invalid/expired token. Terminal.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound: document truly absent after the whole resolution cascade.
	ErrNotFound = errors.New("not found")
	// ErrServiceUnavailable: a collaborator is unreachable. Retryable.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrEngineTimeout: generation run exceeded its polling ceiling. Retryable.
	ErrEngineTimeout = errors.New("engine timeout")
	// ErrEngineFailed: terminal generation engine failure.
	ErrEngineFailed = errors.New("engine failed")
	// ErrSyncInProgress: a sync trigger collapsed into a running one.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ForbiddenCaseError is an entitlement check failure. It carries the
// offending case number so the refusal message and the audit trail can
// name it without leaking content.
type ForbiddenCaseError struct {
	CaseID string
	Path   string
}

func (e *ForbiddenCaseError) Error() string {
	if e.CaseID == "" {
		return fmt.Sprintf("forbidden: path %q has no case prefix", e.Path)
	}
	return fmt.Sprintf("forbidden: case %s not in entitlement", e.CaseID)
}

// IsForbidden reports whether err is any entitlement failure.
func IsForbidden(err error) bool {
	var fe *ForbiddenCaseError
	return errors.As(err, &fe)
}
