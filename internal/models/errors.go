package models

import "errors"

var (
	// ErrNotFound is returned by stores when the requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest marks caller input that failed validation.
	ErrInvalidRequest = errors.New("invalid request")
)
