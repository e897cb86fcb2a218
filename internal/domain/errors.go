package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicate      = errors.New("duplicate external id")
	ErrAuth           = errors.New("auth: token request failed")
	ErrFetch          = errors.New("fetch: listings request failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrValidation     = errors.New("validation failed")
	ErrAssetCache     = errors.New("asset cache failed")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ValidationError describes a raw entry that was dropped by the sanitizer.
type ValidationError struct {
	Index      int
	ExternalID string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("entry %d (%s): %s", e.Index, e.ExternalID, e.Reason)
	}
	return fmt.Sprintf("entry %d: %s", e.Index, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
