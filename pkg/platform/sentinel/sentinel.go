// Package sentinel holds the storage facts stores report to services.
// Stores wrap these; services translate them into domain errors. Input
// validation failures belong in pkg/domain-errors instead.
package sentinel

import "errors"

var (
	// ErrNotFound: no record for the key, including expired nonces.
	ErrNotFound = errors.New("not found")
	// ErrConflict: an identical record already exists.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the record is terminal and cannot change, such as a revoked assignment.
	ErrInvalidState = errors.New("invalid state")
)
