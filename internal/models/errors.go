package models

import "errors"

var (
	// ErrModelNotFound is returned when no local model matches a name.
	ErrModelNotFound = errors.New("model not found")

	// ErrAmbiguousModel is returned when a partial name matches more
	// than one local model.
	ErrAmbiguousModel = errors.New("model name is ambiguous")
)
