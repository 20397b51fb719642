// Package common holds errors shared between the repositories and the
// service layer.
package common

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInsufficientCredits is returned by a conditional debit that
	// matched no row because the balance was below the cost.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrStatusChanged is returned by a conditional status transition when
	// the paper was no longer in one of the expected states.
	ErrStatusChanged = errors.New("exam paper status changed")
)
