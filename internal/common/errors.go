// Package common defines the sentinel errors shared by the store, adapters,
// flows and handlers. Callers match them with errors.Is / errors.As.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Store-level errors.
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Input errors.
	ErrValidation = errors.New("validation error")
	ErrUnreadable = errors.New("unreadable")

	// Infrastructure errors.
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrInternal           = errors.New("internal error")
)

// DuplicateIDsError reports every employee id that occurs more than once in a
// single batch. It matches ErrValidation.
type DuplicateIDsError struct {
	IDs []string
}

func (e *DuplicateIDsError) Error() string {
	return fmt.Sprintf("duplicate employee ids: %s", strings.Join(e.IDs, ", "))
}

func (e *DuplicateIDsError) Unwrap() error {
	return ErrValidation
}

// FindDuplicateIDs returns each id that appears more than once, listed once,
// in the order of its first repetition.
func FindDuplicateIDs(ids []string) []string {
	seen := make(map[string]int, len(ids))
	var dups []string
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id)
		}
	}
	return dups
}
