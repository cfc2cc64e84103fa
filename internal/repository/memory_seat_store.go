package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// rowLock is a mutex whose acquisition can be abandoned when the request
// context is cancelled, the way a database lock wait ends on timeout.
type rowLock chan struct{}

func newRowLock() rowLock { return make(rowLock, 1) }

func (l rowLock) acquire(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l rowLock) release() { <-l }

type memSeat struct {
	lock rowLock
	seat model.Seat // committed state, guarded by MemorySeatStore.mu
}

type memCategory struct {
	lock rowLock
	cat  model.Category
	ids  []uint64 // ascending ticket IDs
}

type posKey struct {
	event    uuid.UUID
	row, col int
}

type catKey struct {
	event uuid.UUID
	name  string
}

// MemorySeatStore is an in-process SeatStore with the same locking and
// commit semantics as the MySQL store: per-row and per-category locks held
// until the transaction ends, and writes that become visible only on
// commit.  It backs STORE_DRIVER=memory and the tests.
type MemorySeatStore struct {
	mu         sync.RWMutex
	nextID     uint64
	seats      map[uint64]*memSeat
	positions  map[posKey]uint64
	categories map[catKey]*memCategory
	ledger     *MemoryLedger
}

// NewMemorySeatStore returns an empty store with its own ledger.
func NewMemorySeatStore() *MemorySeatStore {
	return &MemorySeatStore{
		seats:      make(map[uint64]*memSeat),
		positions:  make(map[posKey]uint64),
		categories: make(map[catKey]*memCategory),
		ledger:     NewMemoryLedger(),
	}
}

// Ledger returns the ledger purchases committed through this store are
// recorded in.
func (s *MemorySeatStore) Ledger() *MemoryLedger { return s.ledger }

func (s *MemorySeatStore) Begin(ctx context.Context) (SeatTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memSeatTx{
		s:         s,
		seats:     make(map[uint64]*memSeat),
		pending:   make(map[uint64]model.SeatFlags),
		purchases: make(map[uint64]uuid.UUID),
	}, nil
}

func (s *MemorySeatStore) ProvisionCategory(ctx context.Context, c model.Category) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := catKey{c.EventID, c.Name}
	if _, ok := s.categories[key]; ok {
		return ErrConflict
	}
	seats := c.Seats()
	for _, seat := range seats {
		if !seat.Pooled() {
			if _, taken := s.positions[posKey{c.EventID, *seat.Row, *seat.Column}]; taken {
				return ErrConflict
			}
		}
	}
	mc := &memCategory{lock: newRowLock(), cat: c, ids: make([]uint64, 0, len(seats))}
	for _, seat := range seats {
		s.nextID++
		seat.TicketID = s.nextID
		s.seats[seat.TicketID] = &memSeat{lock: newRowLock(), seat: seat}
		if !seat.Pooled() {
			s.positions[posKey{c.EventID, *seat.Row, *seat.Column}] = seat.TicketID
		}
		mc.ids = append(mc.ids, seat.TicketID)
	}
	s.categories[key] = mc
	return nil
}

func (s *MemorySeatStore) Categories(ctx context.Context, eventID uuid.UUID) ([]model.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Category
	for k, mc := range s.categories {
		if k.event == eventID {
			out = append(out, mc.cat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemorySeatStore) SeatMap(ctx context.Context, eventID uuid.UUID, category string) ([]model.Seat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.categories[catKey{eventID, category}]
	if !ok {
		return nil, nil
	}
	out := make([]model.Seat, 0, len(mc.ids))
	for _, id := range mc.ids {
		out = append(out, s.seats[id].seat)
	}
	return out, nil
}

type memSeatTx struct {
	s         *MemorySeatStore
	seats     map[uint64]*memSeat
	pending   map[uint64]model.SeatFlags
	cats      []*memCategory
	purchases map[uint64]uuid.UUID
	done      bool
}

func (t *memSeatTx) GetAndUpdate(ctx context.Context, eventID uuid.UUID, ref model.SeatRef, fn model.TransitionFunc) (model.SeatFlags, model.SeatFlags, error) {
	if t.done {
		return model.SeatFlags{}, model.SeatFlags{}, ErrTxDone
	}
	t.s.mu.RLock()
	var ms *memSeat
	if ref.IsTicket() {
		if m, ok := t.s.seats[ref.TicketID]; ok && m.seat.EventID == eventID {
			ms = m
		}
	} else if id, ok := t.s.positions[posKey{eventID, ref.Row, ref.Column}]; ok {
		ms = t.s.seats[id]
	}
	t.s.mu.RUnlock()
	if ms == nil {
		return model.SeatFlags{}, model.SeatFlags{}, ErrNotFound
	}
	if err := t.lockSeat(ctx, ms); err != nil {
		return model.SeatFlags{}, model.SeatFlags{}, err
	}
	old := t.current(ms)
	next, err := t.UpdateLocked(ctx, ms.seat.TicketID, fn)
	if err != nil {
		return old, old, err
	}
	return old, next, nil
}

func (t *memSeatTx) LockCategory(ctx context.Context, eventID uuid.UUID, name string) (model.Category, error) {
	if t.done {
		return model.Category{}, ErrTxDone
	}
	t.s.mu.RLock()
	mc, ok := t.s.categories[catKey{eventID, name}]
	t.s.mu.RUnlock()
	if !ok {
		return model.Category{}, ErrNotFound
	}
	for _, held := range t.cats {
		if held == mc {
			return mc.cat, nil
		}
	}
	if err := mc.lock.acquire(ctx); err != nil {
		return model.Category{}, err
	}
	t.cats = append(t.cats, mc)
	return mc.cat, nil
}

func (t *memSeatTx) SelectAndLockN(ctx context.Context, eventID uuid.UUID, category string, n int) ([]model.Seat, error) {
	if t.done {
		return nil, ErrTxDone
	}
	candidates := t.categorySeats(eventID, category)
	var out []model.Seat
	for _, ms := range candidates {
		if len(out) == n {
			break
		}
		seat, ok, err := t.lockIf(ctx, ms, func(f model.SeatFlags) bool {
			return f.IsAvailable && !f.IsReserved
		})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, seat)
		}
	}
	return out, nil
}

func (t *memSeatTx) LockHeldBy(ctx context.Context, eventID, requester uuid.UUID, category string, scope HoldScope) ([]model.Seat, error) {
	if t.done {
		return nil, ErrTxDone
	}
	held := func(f model.SeatFlags) bool {
		return model.Classify(f, requester) == model.StateHeldBySelf
	}
	var out []model.Seat
	for _, ms := range t.categorySeats(eventID, category) {
		if ms.seat.Pooled() != (scope == ScopePool) {
			continue
		}
		t.s.mu.RLock()
		candidate := held(t.flagsLocked(ms))
		t.s.mu.RUnlock()
		if !candidate {
			continue
		}
		seat, ok, err := t.lockIf(ctx, ms, held)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, seat)
		}
	}
	return out, nil
}

func (t *memSeatTx) UpdateLocked(ctx context.Context, ticketID uint64, fn model.TransitionFunc) (model.SeatFlags, error) {
	if t.done {
		return model.SeatFlags{}, ErrTxDone
	}
	ms, ok := t.seats[ticketID]
	if !ok {
		return model.SeatFlags{}, ErrNotLocked
	}
	cur := t.current(ms)
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	if !sameFlags(cur, next) {
		t.pending[ticketID] = next
	}
	return next, nil
}

func (t *memSeatTx) RecordPurchase(ctx context.Context, ticketID uint64, buyer uuid.UUID) error {
	if t.done {
		return ErrTxDone
	}
	if _, dup := t.purchases[ticketID]; dup || t.s.ledger.purchased(ticketID) {
		return ErrConflict
	}
	t.purchases[ticketID] = buyer
	return nil
}

func (t *memSeatTx) IsCommitted(ctx context.Context, ticketID uint64, cartID uuid.UUID) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	if _, ok := t.purchases[ticketID]; ok {
		return true, nil
	}
	return t.s.ledger.IsCommitted(ctx, ticketID, cartID)
}

func (t *memSeatTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.s.mu.Lock()
	for id, flags := range t.pending {
		t.s.seats[id].seat.Flags = flags
	}
	t.s.mu.Unlock()
	for id, buyer := range t.purchases {
		t.s.ledger.recordPurchase(id, buyer)
	}
	t.finish()
	return nil
}

func (t *memSeatTx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *memSeatTx) finish() {
	t.done = true
	for _, ms := range t.seats {
		ms.lock.release()
	}
	for _, mc := range t.cats {
		mc.lock.release()
	}
	t.seats, t.cats, t.pending = nil, nil, nil
}

func (t *memSeatTx) lockSeat(ctx context.Context, ms *memSeat) error {
	if _, ok := t.seats[ms.seat.TicketID]; ok {
		return nil
	}
	if err := ms.lock.acquire(ctx); err != nil {
		return err
	}
	t.seats[ms.seat.TicketID] = ms
	return nil
}

// lockIf locks the seat and keeps the lock only when keep accepts its
// current flags.
func (t *memSeatTx) lockIf(ctx context.Context, ms *memSeat, keep func(model.SeatFlags) bool) (model.Seat, bool, error) {
	_, already := t.seats[ms.seat.TicketID]
	if err := t.lockSeat(ctx, ms); err != nil {
		return model.Seat{}, false, err
	}
	seat := ms.seat
	seat.Flags = t.current(ms)
	if keep(seat.Flags) {
		return seat, true, nil
	}
	if !already {
		delete(t.seats, ms.seat.TicketID)
		ms.lock.release()
	}
	return model.Seat{}, false, nil
}

func (t *memSeatTx) categorySeats(eventID uuid.UUID, category string) []*memSeat {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	mc, ok := t.s.categories[catKey{eventID, category}]
	if !ok {
		return nil
	}
	out := make([]*memSeat, 0, len(mc.ids))
	for _, id := range mc.ids {
		out = append(out, t.s.seats[id])
	}
	return out
}

func (t *memSeatTx) current(ms *memSeat) model.SeatFlags {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.flagsLocked(ms)
}

// flagsLocked must be called with the store mutex held.
func (t *memSeatTx) flagsLocked(ms *memSeat) model.SeatFlags {
	if f, ok := t.pending[ms.seat.TicketID]; ok {
		return f
	}
	return ms.seat.Flags
}
