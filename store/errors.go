package store

import "errors"

var (
	// ErrNotFound is returned when a record doesn't exist or is tombstoned.
	ErrNotFound = errors.New("lattice: record not found")

	// ErrTransactionStep is returned when a transaction step fails.
	// Earlier steps are not rolled back.
	ErrTransactionStep = errors.New("lattice: transaction step failed")

	// ErrEmptyStep is returned when a transaction step has no operation set.
	ErrEmptyStep = errors.New("lattice: transaction step has no operation")
)
