package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// HoldScope restricts a hold sweep to one kind of seat.
type HoldScope int

const (
	ScopeAssigned HoldScope = iota // seats with a row and column
	ScopePool                      // unassigned pool tickets
)

// SeatStore is the durable table of seats.  Every mutation goes through a
// SeatTx; the remaining methods are plain reads and provisioning.
type SeatStore interface {
	// Begin opens an independent transactional session.  Callers must end
	// it with Commit or Rollback.
	Begin(ctx context.Context) (SeatTx, error)
	// ProvisionCategory stores the category and one FREE seat per
	// position (or PoolSize tickets) atomically.  ErrConflict when the
	// category already exists.
	ProvisionCategory(ctx context.Context, c model.Category) error
	Categories(ctx context.Context, eventID uuid.UUID) ([]model.Category, error)
	// SeatMap returns the committed state of every seat of a category
	// ordered by ticket ID.
	SeatMap(ctx context.Context, eventID uuid.UUID, category string) ([]model.Seat, error)
}

// SeatTx is one transaction against the seat store.  Rows read through the
// Lock*/Select* methods stay locked until Commit or Rollback, so two
// transactions never observe the same row in a partially applied state.
// Locks are taken category first, then seats in ascending ticket ID.
type SeatTx interface {
	// GetAndUpdate locks one seat, applies fn to its flags and persists
	// the result.  It returns the flags before and after.  ErrNotFound
	// when the seat does not exist for the event.
	GetAndUpdate(ctx context.Context, eventID uuid.UUID, ref model.SeatRef, fn model.TransitionFunc) (old, next model.SeatFlags, err error)
	// LockCategory locks the category row, serializing pool allocation
	// and sweeps within that category.
	LockCategory(ctx context.Context, eventID uuid.UUID, name string) (model.Category, error)
	// SelectAndLockN locks up to n FREE seats of the category in ticket
	// order.  Fewer than n results means the pool cannot satisfy n.
	SelectAndLockN(ctx context.Context, eventID uuid.UUID, category string, n int) ([]model.Seat, error)
	// LockHeldBy locks every still-available seat of the category whose
	// hold belongs to requester.
	LockHeldBy(ctx context.Context, eventID, requester uuid.UUID, category string, scope HoldScope) ([]model.Seat, error)
	// UpdateLocked applies fn to a seat already locked by this
	// transaction.  ErrNotLocked otherwise.
	UpdateLocked(ctx context.Context, ticketID uint64, fn model.TransitionFunc) (model.SeatFlags, error)
	// RecordPurchase writes the ledger entry for a sold ticket.
	RecordPurchase(ctx context.Context, ticketID uint64, buyer uuid.UUID) error
	// IsCommitted reports whether the ticket was purchased or is in
	// cartID.  It reads through this transaction's session and never
	// needs a second connection.
	IsCommitted(ctx context.Context, ticketID uint64, cartID uuid.UUID) (bool, error)
	Commit() error
	Rollback() error
}

func sameFlags(a, b model.SeatFlags) bool {
	if a.IsAvailable != b.IsAvailable || a.IsReserved != b.IsReserved {
		return false
	}
	if a.LastReserver == nil || b.LastReserver == nil {
		return a.LastReserver == nil && b.LastReserver == nil
	}
	return *a.LastReserver == *b.LastReserver
}
