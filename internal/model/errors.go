package model

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned by stores when a conditional update did not
	// match the expected current state.
	ErrConflict = errors.New("record state conflict")
)
