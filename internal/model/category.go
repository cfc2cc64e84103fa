package model

import (
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Layout tells how the seats of a category are addressed.
type Layout string

const (
	LayoutAssigned Layout = "ASSIGNED" // one seat per row×column
	LayoutPool     Layout = "POOL"     // PoolSize fungible tickets
)

// Category is a ticket tier of an event.  An ASSIGNED category covers the
// inclusive rectangle StartRow..EndRow × StartColumn..EndColumn; a POOL
// category holds PoolSize unassigned tickets.  PriceCents is stored for the
// storefront and never interpreted here.
type Category struct {
	EventID     uuid.UUID `json:"event_id"`
	Name        string    `json:"category_name"`
	Layout      Layout    `json:"layout"`
	PriceCents  uint32    `json:"price_cents"`
	StartRow    int       `json:"start_row,omitempty"`
	EndRow      int       `json:"end_row,omitempty"`
	StartColumn int       `json:"start_column,omitempty"`
	EndColumn   int       `json:"end_column,omitempty"`
	PoolSize    int       `json:"pool_size,omitempty"`
}

// ErrInvalidCategory is returned by Validate.
var ErrInvalidCategory = errors.New("invalid category")

// Provisioning limits.
const (
	MaxCategoryName = 64
	MaxCapacity     = 100000
	MaxPosition     = math.MaxInt32 // seat_row and seat_column are INT
)

// Validate checks that the category describes at least one seat.
func (c Category) Validate() error {
	if c.EventID == uuid.Nil || strings.TrimSpace(c.Name) == "" || len(c.Name) > MaxCategoryName {
		return ErrInvalidCategory
	}
	switch c.Layout {
	case LayoutAssigned:
		if c.StartRow < 1 || c.StartColumn < 1 || c.EndRow < c.StartRow || c.EndColumn < c.StartColumn {
			return ErrInvalidCategory
		}
		if c.EndRow > MaxPosition || c.EndColumn > MaxPosition {
			return ErrInvalidCategory
		}
		// checked span by span so the product cannot overflow
		rows, cols := c.EndRow-c.StartRow+1, c.EndColumn-c.StartColumn+1
		if rows > MaxCapacity || cols > MaxCapacity/rows {
			return ErrInvalidCategory
		}
	case LayoutPool:
		if c.PoolSize < 1 || c.PoolSize > MaxCapacity {
			return ErrInvalidCategory
		}
	default:
		return ErrInvalidCategory
	}
	return nil
}

// Capacity returns how many seats provisioning will create.  Only
// meaningful for a category that passed Validate.
func (c Category) Capacity() int {
	if c.Layout == LayoutPool {
		return c.PoolSize
	}
	return (c.EndRow - c.StartRow + 1) * (c.EndColumn - c.StartColumn + 1)
}

// Seats expands the category into its initial FREE seat records.  Ticket
// IDs are left zero for the store to assign.
func (c Category) Seats() []Seat {
	seats := make([]Seat, 0, c.Capacity())
	if c.Layout == LayoutPool {
		for i := 0; i < c.PoolSize; i++ {
			seats = append(seats, Seat{EventID: c.EventID, Category: c.Name, Flags: FreeFlags()})
		}
		return seats
	}
	for row := c.StartRow; row <= c.EndRow; row++ {
		for col := c.StartColumn; col <= c.EndColumn; col++ {
			r, cl := row, col
			seats = append(seats, Seat{EventID: c.EventID, Category: c.Name, Row: &r, Column: &cl, Flags: FreeFlags()})
		}
	}
	return seats
}
