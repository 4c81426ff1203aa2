package models

import "errors"

// Error kinds surfaced by the catalog and the reservation engine. Callers
// wrap them with context and match with errors.Is.
var (
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrConflict              = errors.New("conflict")
	ErrStorageFailure        = errors.New("storage failure")
)
