package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// movementNamespace seeds deterministic movement IDs.
var movementNamespace = uuid.MustParse("3b1f6a0e-9c4d-5e7a-8f21-6d0c4b9a7e13")

const appendAttempts = 2

type recorder struct {
	repo   stock.Repository
	logger logger.ZapLogger
}

// movementID is stable for a given swap, so a repeated append of the same
// movement collides on the primary key instead of duplicating the entry.
func movementID(itemID, locationID string, sequence int64) string {
	name := fmt.Sprintf("%s/%s/%d", itemID, locationID, sequence)
	return uuid.NewSHA1(movementNamespace, []byte(name)).String()
}

func newMovement(before, after *model.StockLevel, m *mutation) *model.StockMovement {
	return &model.StockMovement{
		ID:             movementID(after.ItemID, after.LocationID, after.Version),
		ItemID:         after.ItemID,
		LocationID:     after.LocationID,
		ReservationID:  m.reservationID,
		MovementType:   m.movementType,
		QuantityDelta:  after.OnHand - before.OnHand,
		QuantityBefore: before.OnHand,
		QuantityAfter:  after.OnHand,
		ReservedDelta:  after.Reserved - before.Reserved,
		Sequence:       after.Version,
		Reason:         m.reason,
		ActorRef:       m.actor,
		OccurredAt:     after.UpdatedAt,
	}
}

// record appends the movement for a committed swap. The stock level is the
// source of truth: a failed append is logged for reconciliation and never
// surfaces to the caller.
func (r *recorder) record(ctx context.Context, before, after *model.StockLevel, m *mutation) {
	mv := newMovement(before, after, m)

	var err error
	for i := 0; i < appendAttempts; i++ {
		err = r.repo.AppendMovement(ctx, mv)
		if err == nil || errors.Is(err, stock.ErrDuplicateMovement) {
			return
		}
	}

	reservationID := ""
	if mv.ReservationID != nil {
		reservationID = *mv.ReservationID
	}
	r.logger.Error("movement append failed after stock swap, reconcile required",
		zap.String("movement_id", mv.ID),
		zap.String("item_id", mv.ItemID),
		zap.String("location_id", mv.LocationID),
		zap.String("movement_type", string(mv.MovementType)),
		zap.String("reservation_id", reservationID),
		zap.Int64("sequence", mv.Sequence),
		zap.Int64("quantity_delta", mv.QuantityDelta),
		zap.Int64("quantity_before", mv.QuantityBefore),
		zap.Int64("quantity_after", mv.QuantityAfter),
		zap.Int64("reserved_delta", mv.ReservedDelta),
		zap.String("actor_ref", mv.ActorRef),
		zap.Time("occurred_at", mv.OccurredAt),
		zap.Error(err),
	)
}
