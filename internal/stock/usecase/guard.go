package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"go.uber.org/zap"
)

// mutation describes what a successful swap did, for the audit trail.
// An empty movementType means the swap is not recorded (threshold edits).
type mutation struct {
	movementType  model.MovementType
	reason        string
	actor         string
	reservationID *string
	change        *stock.ReservationChange
}

// computeFn derives the next level from a private copy of the current one.
// Returning an error aborts the mutation without retrying.
type computeFn func(level *model.StockLevel) (*mutation, error)

// guard serializes read-compute-write cycles on one stock level through
// optimistic versioning. Nothing here holds a lock across calls.
type guard struct {
	repo       stock.Repository
	recorder   *recorder
	maxRetries int
	base       time.Duration
	max        time.Duration
	now        func() time.Time
	logger     logger.ZapLogger
}

func (g *guard) mutate(ctx context.Context, itemID, locationID string, fn computeFn) (before, after *model.StockLevel, err error) {
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := g.backoff(ctx, attempt); err != nil {
				return nil, nil, err
			}
		}

		current, err := g.repo.GetLevel(ctx, itemID, locationID)
		if err != nil {
			return nil, nil, err
		}

		next := *current
		m, err := fn(&next)
		if err != nil {
			return nil, nil, err
		}

		next.UpdatedAt = g.now()
		next.Normalize()
		if err := next.Validate(); err != nil {
			g.logger.Error("computed stock level breaks invariant",
				zap.String("item_id", itemID),
				zap.String("location_id", locationID),
				zap.Int64("on_hand", next.OnHand),
				zap.Int64("reserved", next.Reserved),
			)
			return nil, nil, err
		}

		err = g.repo.CompareAndSwap(ctx, &next, current.Version, m.change)
		if errors.Is(err, stock.ErrVersionConflict) {
			g.logger.Debug("stock level version conflict, retrying",
				zap.String("item_id", itemID),
				zap.String("location_id", locationID),
				zap.Int64("expected_version", current.Version),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		if m.movementType != "" {
			g.recorder.record(ctx, current, &next, m)
		}
		return current, &next, nil
	}

	g.logger.Warn("stock level contention, retries exhausted",
		zap.String("item_id", itemID),
		zap.String("location_id", locationID),
		zap.Int("max_retries", g.maxRetries),
	)
	return nil, nil, stock.ErrContention
}

// backoff sleeps a jittered, exponentially growing delay in [d/2, d].
func (g *guard) backoff(ctx context.Context, attempt int) error {
	d := g.base << (attempt - 1)
	if d > g.max || d <= 0 {
		d = g.max
	}
	if d <= 0 {
		return nil
	}
	d = d/2 + rand.N(d/2+1)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
