package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// IsCommitted reads the Commitment Ledger: ticket_list (purchases) and
// cart_items (tickets placed in a cart).  Both tables are written by the
// checkout flow; the reservation engine only reads cart_items.  The lookup
// runs on the sweep's own transaction, so a sweep holds exactly one pooled
// connection.
func (t *mysqlSeatTx) IsCommitted(ctx context.Context, ticketID uint64, cartID uuid.UUID) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	const q = `SELECT EXISTS (SELECT 1 FROM ticket_list WHERE ticket_id = ?)
	               OR EXISTS (SELECT 1 FROM cart_items WHERE cart_id = ? AND ticket_id = ?)`
	var committed bool
	if err := t.tx.QueryRowContext(ctx, q, ticketID, cartID.String(), ticketID).Scan(&committed); err != nil {
		return false, fmt.Errorf("ledger lookup %d: %w", ticketID, err)
	}
	return committed, nil
}
