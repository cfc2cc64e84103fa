package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// Errors reported by ReservationService.  Occupied and sold seats are not
// errors; they come back as a model.Outcome.
var (
	// ErrNotFound: the event, category or seat does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientInventory: the pool has fewer free tickets than asked for.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrInvalidRequest: malformed identifiers, counts or category definitions.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrConflict: the category already exists.
	ErrConflict = errors.New("conflict")
	// ErrNotHeld: a purchase names a ticket the buyer does not hold.
	ErrNotHeld = errors.New("ticket not held by requester")
	// ErrStoreFailure: the transaction aborted or the store was
	// unreachable.  Nothing was applied and the request may be retried.
	ErrStoreFailure = errors.New("store failure")
)

// translate maps repository errors onto the service taxonomy.  Anything
// unrecognised, context cancellation included, is a store failure.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInsufficientInventory),
		errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotHeld), errors.Is(err, ErrStoreFailure):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case errors.Is(err, model.ErrIllegalTransition):
		return fmt.Errorf("%s: %w", op, ErrNotHeld)
	case errors.Is(err, model.ErrInvalidCategory):
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidRequest, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
	}
}
