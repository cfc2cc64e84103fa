package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLedger is the in-process Commitment Ledger.  Purchases arrive from
// committed MemorySeatStore transactions; cart contents are written by
// AddToCart, standing in for the checkout service.
type MemoryLedger struct {
	mu    sync.RWMutex
	sold  map[uint64]uuid.UUID
	carts map[uuid.UUID]map[uint64]struct{}
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		sold:  make(map[uint64]uuid.UUID),
		carts: make(map[uuid.UUID]map[uint64]struct{}),
	}
}

// AddToCart records that ticketID was placed in cartID.
func (l *MemoryLedger) AddToCart(cartID uuid.UUID, ticketID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, ok := l.carts[cartID]
	if !ok {
		items = make(map[uint64]struct{})
		l.carts[cartID] = items
	}
	items[ticketID] = struct{}{}
}

// Buyer returns who purchased ticketID, if anyone.
func (l *MemoryLedger) Buyer(ticketID uint64) (uuid.UUID, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.sold[ticketID]
	return b, ok
}

func (l *MemoryLedger) IsCommitted(ctx context.Context, ticketID uint64, cartID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.sold[ticketID]; ok {
		return true, nil
	}
	_, carted := l.carts[cartID][ticketID]
	return carted, nil
}

func (l *MemoryLedger) purchased(ticketID uint64) bool {
	_, ok := l.Buyer(ticketID)
	return ok
}

func (l *MemoryLedger) recordPurchase(ticketID uint64, buyer uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sold[ticketID] = buyer
}
