package model

import "github.com/google/uuid"

// Seat is one sellable unit of an event.  For an assigned-seat layout it is
// identified by its row and column; for a pool category Row and Column are
// nil and the seat is addressed only by its ticket ID.
//
// Fields:
//  TicketID – primary key of the seating_plan row.
//  EventID  – owning event.
//  Category – ticket category (price tier) the seat belongs to.
//  Row      – row number, nil for pool tickets.
//  Column   – column number, nil for pool tickets.
//  Flags    – availability and hold state.
type Seat struct {
	TicketID uint64    `json:"ticket_id"`
	EventID  uuid.UUID `json:"event_id"`
	Category string    `json:"category_name"`
	Row      *int      `json:"row_number,omitempty"`
	Column   *int      `json:"column_number,omitempty"`
	Flags    SeatFlags `json:"flags"`
}

// Pooled reports whether the seat belongs to a fungible pool.
func (s Seat) Pooled() bool { return s.Row == nil || s.Column == nil }

// SeatFlags is the stored state of a seat.  LastReserver is meaningful only
// while IsReserved is true and IsAvailable is true.
type SeatFlags struct {
	IsAvailable  bool       `json:"is_available"`
	IsReserved   bool       `json:"is_reserved"`
	LastReserver *uuid.UUID `json:"last_reserver,omitempty"`
}

// FreeFlags returns the flags every seat is created with.
func FreeFlags() SeatFlags { return SeatFlags{IsAvailable: true} }

// SeatRef addresses a single seat of an event: either a (row, column) pair
// or a ticket ID.  Exactly one form must be set.
type SeatRef struct {
	Row      int
	Column   int
	TicketID uint64
}

// ByPosition addresses a seat of an assigned layout.
func ByPosition(row, column int) SeatRef { return SeatRef{Row: row, Column: column} }

// ByTicket addresses a seat by its ticket ID.
func ByTicket(id uint64) SeatRef { return SeatRef{TicketID: id} }

// IsTicket reports whether the reference uses the ticket ID form.
func (r SeatRef) IsTicket() bool { return r.TicketID != 0 }

// Valid reports whether exactly one addressing form is usable.  Rows and
// columns are 1-based.
func (r SeatRef) Valid() bool {
	if r.IsTicket() {
		return r.Row == 0 && r.Column == 0
	}
	return r.Row > 0 && r.Column > 0
}
