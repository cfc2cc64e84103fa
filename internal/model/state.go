package model

import (
	"errors"

	"github.com/google/uuid"
)

// SeatState is the hold state of a seat as seen by one requester.  It is
// derived from the stored flags plus the identity of the requester.
type SeatState int

const (
	StateSold SeatState = iota
	StateFree
	StateHeldByOther
	StateHeldBySelf
)

func (s SeatState) String() string {
	switch s {
	case StateSold:
		return "SOLD"
	case StateFree:
		return "FREE"
	case StateHeldByOther:
		return "HELD_BY_OTHER"
	case StateHeldBySelf:
		return "HELD_BY_SELF"
	}
	return "UNKNOWN"
}

// Outcome is what a toggle request reports back to the caller.
type Outcome string

const (
	OutcomeReserved   Outcome = "reserved"
	OutcomeOccupied   Outcome = "occupied"
	OutcomeSold       Outcome = "sold"
	OutcomeUnreserved Outcome = "unreserved"
)

// ErrIllegalTransition is returned by the strict transitions (Hold, Release,
// Sell) when the seat is not in the state they start from.
var ErrIllegalTransition = errors.New("illegal seat transition")

// Classify maps the stored flags to a SeatState relative to requester.  A
// reserved seat without a recorded holder is treated as held by someone
// else so that it can never be toggled free by a stranger.
func Classify(f SeatFlags, requester uuid.UUID) SeatState {
	switch {
	case !f.IsAvailable:
		return StateSold
	case !f.IsReserved:
		return StateFree
	case f.LastReserver == nil || *f.LastReserver != requester:
		return StateHeldByOther
	default:
		return StateHeldBySelf
	}
}

// TransitionFunc computes the next flags of a seat from its current flags.
// The store applies the returned flags atomically with the read.
type TransitionFunc func(current SeatFlags) (SeatFlags, error)

// ToggleReserve is the reserve action on an assigned seat.  A second call by
// the current holder releases the seat instead of re-reserving it; the seat
// picker relies on this to deselect a clicked seat.
//
//	SOLD          -> SOLD          sold
//	FREE          -> HELD_BY_SELF  reserved
//	HELD_BY_OTHER -> HELD_BY_OTHER occupied
//	HELD_BY_SELF  -> FREE          unreserved
func ToggleReserve(f SeatFlags, requester uuid.UUID) (SeatFlags, Outcome) {
	switch Classify(f, requester) {
	case StateSold:
		return f, OutcomeSold
	case StateFree:
		return heldBy(requester), OutcomeReserved
	case StateHeldBySelf:
		return FreeFlags(), OutcomeUnreserved
	default:
		return f, OutcomeOccupied
	}
}

// Hold moves a FREE seat to HELD_BY_SELF.
func Hold(f SeatFlags, requester uuid.UUID) (SeatFlags, error) {
	if Classify(f, requester) != StateFree {
		return f, ErrIllegalTransition
	}
	return heldBy(requester), nil
}

// Release moves a seat held by requester back to FREE.
func Release(f SeatFlags, requester uuid.UUID) (SeatFlags, error) {
	if Classify(f, requester) != StateHeldBySelf {
		return f, ErrIllegalTransition
	}
	return FreeFlags(), nil
}

// Sell makes a seat held by requester terminally unavailable.  The holder is
// kept on the row as the buyer of record.
func Sell(f SeatFlags, requester uuid.UUID) (SeatFlags, error) {
	if Classify(f, requester) != StateHeldBySelf {
		return f, ErrIllegalTransition
	}
	return SeatFlags{IsAvailable: false, IsReserved: false, LastReserver: f.LastReserver}, nil
}

func heldBy(requester uuid.UUID) SeatFlags {
	u := requester
	return SeatFlags{IsAvailable: true, IsReserved: true, LastReserver: &u}
}
