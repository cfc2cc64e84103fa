package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

func newStore(t *testing.T) (*MemorySeatStore, uuid.UUID) {
	t.Helper()
	s := NewMemorySeatStore()
	ev := uuid.New()
	ctx := context.Background()
	require.NoError(t, s.ProvisionCategory(ctx, model.Category{
		EventID: ev, Name: "Stalls", Layout: model.LayoutAssigned, StartRow: 1, EndRow: 2, StartColumn: 1, EndColumn: 2,
	}))
	require.NoError(t, s.ProvisionCategory(ctx, model.Category{
		EventID: ev, Name: "GA", Layout: model.LayoutPool, PoolSize: 3,
	}))
	return s, ev
}

func holdFor(u uuid.UUID) model.TransitionFunc {
	return func(f model.SeatFlags) (model.SeatFlags, error) { return model.Hold(f, u) }
}

func seatFlags(t *testing.T, s *MemorySeatStore, ev uuid.UUID, category string, id uint64) model.SeatFlags {
	t.Helper()
	seats, err := s.SeatMap(context.Background(), ev, category)
	require.NoError(t, err)
	for _, seat := range seats {
		if seat.TicketID == id {
			return seat.Flags
		}
	}
	t.Fatalf("ticket %d not in %s", id, category)
	return model.SeatFlags{}
}

func TestMemoryStore_Provision(t *testing.T) {
	s, ev := newStore(t)
	ctx := context.Background()

	cats, err := s.Categories(ctx, ev)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "GA", cats[0].Name)
	assert.Equal(t, "Stalls", cats[1].Name)

	seats, err := s.SeatMap(ctx, ev, "Stalls")
	require.NoError(t, err)
	require.Len(t, seats, 4)
	for i := 1; i < len(seats); i++ {
		assert.Less(t, seats[i-1].TicketID, seats[i].TicketID)
	}

	err = s.ProvisionCategory(ctx, model.Category{EventID: ev, Name: "GA", Layout: model.LayoutPool, PoolSize: 1})
	assert.ErrorIs(t, err, ErrConflict)

	err = s.ProvisionCategory(ctx, model.Category{
		EventID: ev, Name: "Overlap", Layout: model.LayoutAssigned, StartRow: 2, EndRow: 3, StartColumn: 1, EndColumn: 1,
	})
	assert.ErrorIs(t, err, ErrConflict)
	cats, err = s.Categories(ctx, ev)
	require.NoError(t, err)
	assert.Len(t, cats, 2, "a rejected category leaves nothing behind")
}

func TestMemoryStore_CommitMakesWritesVisible(t *testing.T) {
	s, ev := newStore(t)
	ctx := context.Background()
	a := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	old, next, err := tx.GetAndUpdate(ctx, ev, model.ByPosition(1, 1), holdFor(a))
	require.NoError(t, err)
	assert.Equal(t, model.StateFree, model.Classify(old, a))
	assert.Equal(t, model.StateHeldBySelf, model.Classify(next, a))

	seats, _ := s.SeatMap(ctx, ev, "Stalls")
	assert.Equal(t, model.StateFree, model.Classify(seats[0].Flags, a), "uncommitted write must not be visible")

	require.NoError(t, tx.Commit())
	assert.Equal(t, model.StateHeldBySelf, model.Classify(seatFlags(t, s, ev, "Stalls", seats[0].TicketID), a))
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	s, ev := newStore(t)
	ctx := context.Background()
	a := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.LockCategory(ctx, ev, "GA")
	require.NoError(t, err)
	free, err := tx.SelectAndLockN(ctx, ev, "GA", 2)
	require.NoError(t, err)
	require.Len(t, free, 2)
	for _, seat := range free {
		_, err := tx.UpdateLocked(ctx, seat.TicketID, holdFor(a))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Rollback())

	for _, seat := range free {
		assert.Equal(t, model.StateFree, model.Classify(seatFlags(t, s, ev, "GA", seat.TicketID), a))
	}

	_, err = tx.UpdateLocked(ctx, free[0].TicketID, holdFor(a))
	assert.ErrorIs(t, err, ErrTxDone)
	assert.ErrorIs(t, tx.Commit(), ErrTxDone)
	assert.NoError(t, tx.Rollback(), "rollback is idempotent")
}

func TestMemoryStore_UpdateLockedRequiresLock(t *testing.T) {
	s, ev := newStore(t)
	ctx := context.Background()
	seats, _ := s.SeatMap(ctx, ev, "GA")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	_, err = tx.UpdateLocked(ctx, seats[0].TicketID, holdFor(uuid.New()))
	assert.ErrorIs(t, err, ErrNotLocked)
}

func TestMemoryStore_NotFound(t *testing.T) {
	s, ev := newStore(t)
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, _, err = tx.GetAndUpdate(ctx, ev, model.ByPosition(9, 9), holdFor(uuid.New()))
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = tx.GetAndUpdate(ctx, uuid.New(), model.ByPosition(1, 1), holdFor(uuid.New()))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tx.LockCategory(ctx, ev, "Balcony")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RowLockBlocksSecondTx(t *testing.T) {
	s, ev := newStore(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	tx1, err := s.Begin(ctx)
	require.NoError(t, err)
	_, _, err = tx1.GetAndUpdate(ctx, ev, model.ByPosition(1, 1), holdFor(a))
	require.NoError(t, err)

	// a different seat is not blocked
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	_, _, err = tx2.GetAndUpdate(ctx, ev, model.ByPosition(1, 2), holdFor(b))
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())

	// the same seat waits until the deadline
	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	tx3, err := s.Begin(ctx)
	require.NoError(t, err)
	_, _, err = tx3.GetAndUpdate(short, ev, model.ByPosition(1, 1), holdFor(b))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, tx3.Rollback())

	// and proceeds once the holder commits, seeing the committed state
	done := make(chan error, 1)
	go func() {
		tx4, err := s.Begin(ctx)
		if err != nil {
			done <- err
			return
		}
		_, _, err = tx4.GetAndUpdate(ctx, ev, model.ByPosition(1, 1), holdFor(b))
		_ = tx4.Rollback()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tx1.Commit())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, model.ErrIllegalTransition)
	case <-time.After(time.Second):
		t.Fatal("second transaction never acquired the row")
	}
}

func TestMemoryStore_LockHeldByScope(t *testing.T) {
	s, ev := newStore(t)
	ctx := context.Background()
	a := uuid.New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, _, err = tx.GetAndUpdate(ctx, ev, model.ByPosition(1, 1), holdFor(a))
	require.NoError(t, err)
	_, _, err = tx.GetAndUpdate(ctx, ev, model.ByPosition(2, 2), holdFor(a))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	held, err := tx.LockHeldBy(ctx, ev, a, "Stalls", ScopeAssigned)
	require.NoError(t, err)
	assert.Len(t, held, 2)
	pooled, err := tx.LockHeldBy(ctx, ev, a, "Stalls", ScopePool)
	require.NoError(t, err)
	assert.Empty(t, pooled)
	other, err := tx.LockHeldBy(ctx, ev, uuid.New(), "Stalls", ScopeAssigned)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryStore_RecordPurchase(t *testing.T) {
	s, ev := newStore(t)
	ctx := context.Background()
	a := uuid.New()
	seats, _ := s.SeatMap(ctx, ev, "GA")
	id := seats[0].TicketID

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.RecordPurchase(ctx, id, a))
	assert.ErrorIs(t, tx.RecordPurchase(ctx, id, a), ErrConflict)
	require.NoError(t, tx.Rollback())
	_, sold := s.Ledger().Buyer(id)
	assert.False(t, sold, "rolled back purchase is not recorded")

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.RecordPurchase(ctx, id, a))
	require.NoError(t, tx.Commit())
	buyer, sold := s.Ledger().Buyer(id)
	require.True(t, sold)
	assert.Equal(t, a, buyer)

	committed, err := s.Ledger().IsCommitted(ctx, id, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestMemoryLedger_Carts(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	cart, otherCart := uuid.New(), uuid.New()
	l.AddToCart(cart, 7)

	ok, err := l.IsCommitted(ctx, 7, cart)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.IsCommitted(ctx, 7, otherCart)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = l.IsCommitted(ctx, 8, cart)
	require.NoError(t, err)
	assert.False(t, ok)
}
