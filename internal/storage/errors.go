package storage

import dErrors "dutyguard/pkg/domain-errors"

var (
	// ErrNotFound keeps storage-specific 404s consistent across in-memory and
	// SQL implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")
)
