// Package service holds the Reservation Coordinator: the transactional
// boundary around the seat state machine and the pool allocator.  Every
// mutating operation runs in exactly one store transaction which is
// committed only when the whole operation succeeded.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

const publishTimeout = 3 * time.Second

// EventPublisher receives a HoldEvent after each committed change.
type EventPublisher interface {
	PublishHold(ctx context.Context, ev queue.HoldEvent) error
}

// ReservationService coordinates seat reservations, pool allocation, hold
// sweeps and purchases against a SeatStore.
type ReservationService struct {
	store  repository.SeatStore
	events EventPublisher
	log    *zap.Logger
}

// NewReservationService wires the coordinator.  events may be nil, in which
// case nothing is published.
func NewReservationService(store repository.SeatStore, events EventPublisher, log *zap.Logger) *ReservationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReservationService{store: store, events: events, log: log}
}

// inTx runs fn inside a fresh transaction.  The transaction is committed
// only if fn succeeds and ctx is still live; otherwise it is rolled back
// before the translated error is returned.
func (s *ReservationService) inTx(ctx context.Context, op string, fn func(tx repository.SeatTx) error) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return translate(op, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return translate(op, err)
	}
	if err := ctx.Err(); err != nil {
		return translate(op, err)
	}
	if err := tx.Commit(); err != nil {
		return translate(op, err)
	}
	committed = true
	return nil
}

// ReserveSeat applies the toggle action to one seat on behalf of requester.
// Calling it again while holding the seat releases the seat and reports
// OutcomeUnreserved; a seat held by someone else reports OutcomeOccupied
// and a sold seat OutcomeSold, neither of which is an error.
func (s *ReservationService) ReserveSeat(ctx context.Context, eventID uuid.UUID, ref model.SeatRef, requester uuid.UUID) (model.Outcome, error) {
	const op = "reserve seat"
	if eventID == uuid.Nil || requester == uuid.Nil || !ref.Valid() {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}

	var outcome model.Outcome
	toggle := func(cur model.SeatFlags) (model.SeatFlags, error) {
		next, o := model.ToggleReserve(cur, requester)
		outcome = o
		return next, nil
	}
	err := s.inTx(ctx, op, func(tx repository.SeatTx) error {
		_, _, err := tx.GetAndUpdate(ctx, eventID, ref, toggle)
		return err
	})
	if err != nil {
		s.log.Warn("reserve seat failed",
			zap.String("event_id", eventID.String()),
			zap.String("requester", requester.String()),
			zap.Error(err))
		return "", err
	}

	s.log.Info("seat toggled",
		zap.String("event_id", eventID.String()),
		zap.String("requester", requester.String()),
		zap.Int("row", ref.Row),
		zap.Int("column", ref.Column),
		zap.Uint64("ticket_id", ref.TicketID),
		zap.String("outcome", string(outcome)))

	switch outcome {
	case model.OutcomeReserved:
		s.publish(queue.HoldEvent{Kind: queue.KindReserved, EventID: eventID.String(), RequesterID: requester.String(),
			Row: ref.Row, Column: ref.Column, TicketIDs: ticketIDs(ref)})
	case model.OutcomeUnreserved:
		s.publish(queue.HoldEvent{Kind: queue.KindUnreserved, EventID: eventID.String(), RequesterID: requester.String(),
			Row: ref.Row, Column: ref.Column, TicketIDs: ticketIDs(ref)})
	}
	return outcome, nil
}

// ReleaseHolds releases every assigned seat in category that requester
// still holds, skipping tickets the ledger reports as purchased or carted
// under cartID.  It returns the released ticket IDs.
func (s *ReservationService) ReleaseHolds(ctx context.Context, eventID, requester uuid.UUID, category string, cartID uuid.UUID) ([]uint64, error) {
	return s.sweep(ctx, "release holds", eventID, requester, category, cartID, repository.ScopeAssigned)
}

// ReleasePoolHolds is ReleaseHolds for pool tickets: the same ledger
// exclusion applied to tickets without a row and column.
func (s *ReservationService) ReleasePoolHolds(ctx context.Context, eventID, requester uuid.UUID, category string, cartID uuid.UUID) ([]uint64, error) {
	return s.sweep(ctx, "release pool holds", eventID, requester, category, cartID, repository.ScopePool)
}

func (s *ReservationService) sweep(ctx context.Context, op string, eventID, requester uuid.UUID, category string, cartID uuid.UUID, scope repository.HoldScope) ([]uint64, error) {
	if eventID == uuid.Nil || requester == uuid.Nil || category == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}

	var released []uint64
	release := func(cur model.SeatFlags) (model.SeatFlags, error) {
		return model.Release(cur, requester)
	}
	err := s.inTx(ctx, op, func(tx repository.SeatTx) error {
		released = released[:0]
		if _, err := tx.LockCategory(ctx, eventID, category); err != nil {
			return err
		}
		held, err := tx.LockHeldBy(ctx, eventID, requester, category, scope)
		if err != nil {
			return err
		}
		for _, seat := range held {
			committed, err := tx.IsCommitted(ctx, seat.TicketID, cartID)
			if err != nil {
				return err
			}
			if committed {
				continue
			}
			if _, err := tx.UpdateLocked(ctx, seat.TicketID, release); err != nil {
				return err
			}
			released = append(released, seat.TicketID)
		}
		return nil
	})
	if err != nil {
		s.log.Warn(op+" failed",
			zap.String("event_id", eventID.String()),
			zap.String("category", category),
			zap.String("requester", requester.String()),
			zap.Error(err))
		return nil, err
	}

	s.log.Info(op,
		zap.String("event_id", eventID.String()),
		zap.String("category", category),
		zap.String("requester", requester.String()),
		zap.Int("released", len(released)))
	if len(released) > 0 {
		s.publish(queue.HoldEvent{Kind: queue.KindReleased, EventID: eventID.String(), Category: category,
			RequesterID: requester.String(), TicketIDs: released})
	}
	return released, nil
}

// FinalizePurchase sells the given tickets to requester, who must hold
// every one of them.  Either all tickets are sold and recorded in the
// ledger or none are.
func (s *ReservationService) FinalizePurchase(ctx context.Context, eventID, requester uuid.UUID, ticketIDs []uint64) ([]uint64, error) {
	const op = "finalize purchase"
	if eventID == uuid.Nil || requester == uuid.Nil || len(ticketIDs) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}
	ids, ok := sortedUnique(ticketIDs)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}

	sell := func(cur model.SeatFlags) (model.SeatFlags, error) {
		return model.Sell(cur, requester)
	}
	err := s.inTx(ctx, op, func(tx repository.SeatTx) error {
		for _, id := range ids {
			if _, _, err := tx.GetAndUpdate(ctx, eventID, model.ByTicket(id), sell); err != nil {
				return fmt.Errorf("ticket %d: %w", id, err)
			}
			if err := tx.RecordPurchase(ctx, id, requester); err != nil {
				return fmt.Errorf("ticket %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("finalize purchase failed",
			zap.String("event_id", eventID.String()),
			zap.String("requester", requester.String()),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("purchase finalized",
		zap.String("event_id", eventID.String()),
		zap.String("requester", requester.String()),
		zap.Int("tickets", len(ids)))
	s.publish(queue.HoldEvent{Kind: queue.KindSold, EventID: eventID.String(), RequesterID: requester.String(), TicketIDs: ids})
	return ids, nil
}

// SeatMap returns every seat of a category with its committed flags.
func (s *ReservationService) SeatMap(ctx context.Context, eventID uuid.UUID, category string) ([]model.Seat, error) {
	const op = "seat map"
	if eventID == uuid.Nil || category == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}
	if _, err := s.category(ctx, eventID, category); err != nil {
		return nil, translate(op, err)
	}
	seats, err := s.store.SeatMap(ctx, eventID, category)
	if err != nil {
		return nil, translate(op, err)
	}
	return seats, nil
}

// Categories lists the categories of an event ordered by name.  An event
// without categories is reported as not found.
func (s *ReservationService) Categories(ctx context.Context, eventID uuid.UUID) ([]model.Category, error) {
	const op = "list categories"
	if eventID == uuid.Nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}
	cats, err := s.store.Categories(ctx, eventID)
	if err != nil {
		return nil, translate(op, err)
	}
	if len(cats) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return cats, nil
}

// ProvisionCategory creates a category and all of its seats, every one
// FREE.
func (s *ReservationService) ProvisionCategory(ctx context.Context, c model.Category) error {
	const op = "provision category"
	if err := c.Validate(); err != nil {
		return translate(op, err)
	}
	if err := s.store.ProvisionCategory(ctx, c); err != nil {
		s.log.Warn("provision category failed",
			zap.String("event_id", c.EventID.String()),
			zap.String("category", c.Name),
			zap.Error(err))
		return translate(op, err)
	}
	s.log.Info("category provisioned",
		zap.String("event_id", c.EventID.String()),
		zap.String("category", c.Name),
		zap.String("layout", string(c.Layout)),
		zap.Int("capacity", c.Capacity()))
	return nil
}

func (s *ReservationService) category(ctx context.Context, eventID uuid.UUID, name string) (model.Category, error) {
	cats, err := s.store.Categories(ctx, eventID)
	if err != nil {
		return model.Category{}, err
	}
	for _, c := range cats {
		if c.Name == name {
			return c, nil
		}
	}
	return model.Category{}, repository.ErrNotFound
}

// publish is best effort: it runs after commit and never changes the
// result of the operation.
func (s *ReservationService) publish(ev queue.HoldEvent) {
	if s.events == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.events.PublishHold(ctx, ev); err != nil {
		s.log.Debug("hold event dropped", zap.String("kind", ev.Kind), zap.Error(err))
	}
}

func ticketIDs(ref model.SeatRef) []uint64 {
	if ref.IsTicket() {
		return []uint64{ref.TicketID}
	}
	return nil
}

// sortedUnique returns ids ascending without duplicates.  Locking in
// ascending order keeps concurrent purchases from deadlocking.  A zero id
// is rejected.
func sortedUnique(ids []uint64) ([]uint64, bool) {
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if out[0] == 0 {
		return nil, false
	}
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n], true
}
