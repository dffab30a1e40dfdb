// Package model provides domain model for dwca
package model

import "errors"

var (
	// ErrNoCore is returned when an archive has no core file
	ErrNoCore = errors.New("archive has no core file")
	// ErrNoLocation is returned when a file descriptor has no location
	ErrNoLocation = errors.New("file has no location")
	// ErrMissingID is returned when a file that must be joined has no identifier column
	ErrMissingID = errors.New("file has no identifier column")
	// ErrDuplicateRowType is returned when two extensions share a row type
	ErrDuplicateRowType = errors.New("duplicate extension row type")
	// ErrInvalidDialect is returned for dialects that cannot be read
	ErrInvalidDialect = errors.New("invalid dialect")
	// ErrInvalidField is returned for field mappings with a negative column index
	ErrInvalidField = errors.New("invalid field mapping")
)
