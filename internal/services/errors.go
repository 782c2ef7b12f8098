package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidArgument  = errors.New("invalid argument")
	// ErrVirtualFolder rejects generic folder operations aimed at computed listings.
	ErrVirtualFolder = errors.New("virtual folder cannot be modified")
)

// PermissionDeniedError names the actor and resource a check failed for.
type PermissionDeniedError struct {
	Actor      string
	Kind       models.ResourceKind
	ResourceID uuid.UUID
	Access     string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("%s: %s may not %s %s %s", ErrPermissionDenied, e.Actor, e.Access, e.Kind, e.ResourceID)
}

func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

type PropagationFailure struct {
	EntryID uuid.UUID
	Err     error
}

// PropagationError aggregates per-entry failures of one fan-out. Grants applied
// to other entries stay in place; re-running the propagation is safe.
type PropagationError struct {
	FolderID uuid.UUID
	Failures []PropagationFailure
}

func (e *PropagationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.EntryID, f.Err))
	}
	return fmt.Sprintf("propagation for folder %s failed on %d entries (%s)",
		e.FolderID, len(e.Failures), strings.Join(parts, "; "))
}

func (e *PropagationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func notFound(what string, id interface{}) error {
	return fmt.Errorf("%w: %s %v", ErrNotFound, what, id)
}

// translate maps storage errors onto the service taxonomy.
func translate(err error, what string, id interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(what, id)
	}
	if errors.Is(err, models.ErrMalformedPermission) {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return err
}
