// Package repository defines error types that are reused across the seat
// store and ledger implementations.  These sentinel values allow the
// service layer to distinguish between missing rows, conflicting writes and
// plain storage failures.
package repository

import "errors"

// ErrNotFound is returned when the referenced event, category or seat has
// no row in the store.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with existing state, such
// as provisioning a category that already exists.
var ErrConflict = errors.New("conflict")

// ErrNotLocked is returned when a transaction tries to update a seat it has
// not locked first.  It always indicates a programming error.
var ErrNotLocked = errors.New("seat not locked by transaction")

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already finished")
