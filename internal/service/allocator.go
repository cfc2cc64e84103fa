package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/repository"
)

// MaxAllocation caps the tickets one AllocateFromPool call may claim.
const MaxAllocation = 50

// AllocateFromPool grants requester n distinct FREE tickets from a pool
// category, or nothing at all.
//
// The category row is locked first so that concurrent allocators of the
// same pool run one after another; the free tickets are then selected and
// locked in a single statement and moved to HELD_BY_SELF inside the same
// transaction.  Counting and claiming are never separate commits.
func (s *ReservationService) AllocateFromPool(ctx context.Context, eventID uuid.UUID, category string, requester uuid.UUID, n int) ([]uint64, error) {
	const op = "allocate from pool"
	if eventID == uuid.Nil || requester == uuid.Nil || category == "" || n < 1 || n > MaxAllocation {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}

	hold := func(cur model.SeatFlags) (model.SeatFlags, error) {
		return model.Hold(cur, requester)
	}
	var ids []uint64
	err := s.inTx(ctx, op, func(tx repository.SeatTx) error {
		ids = nil
		cat, err := tx.LockCategory(ctx, eventID, category)
		if err != nil {
			return err
		}
		if cat.Layout != model.LayoutPool {
			return fmt.Errorf("category %q is not a pool: %w", category, ErrInvalidRequest)
		}
		free, err := tx.SelectAndLockN(ctx, eventID, category, n)
		if err != nil {
			return err
		}
		if len(free) < n {
			return fmt.Errorf("%d of %d tickets free: %w", len(free), n, ErrInsufficientInventory)
		}
		for _, seat := range free {
			if _, err := tx.UpdateLocked(ctx, seat.TicketID, hold); err != nil {
				return err
			}
			ids = append(ids, seat.TicketID)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("pool allocation failed",
			zap.String("event_id", eventID.String()),
			zap.String("category", category),
			zap.String("requester", requester.String()),
			zap.Int("count", n),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("pool tickets allocated",
		zap.String("event_id", eventID.String()),
		zap.String("category", category),
		zap.String("requester", requester.String()),
		zap.Uint64s("ticket_ids", ids))
	s.publish(queue.HoldEvent{Kind: queue.KindAllocated, EventID: eventID.String(), Category: category,
		RequesterID: requester.String(), TicketIDs: ids})
	return ids, nil
}
