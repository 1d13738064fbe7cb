package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	reserveKeyPrefix = "stock:reserve:"
	pendingMarker    = "pending"

	reasonExpired   = "expired"
	reasonReleased  = "released"
	reasonCommitted = "sale committed"
)

// KeyStore backs reserve idempotency. *cache.RedisClient satisfies it.
type KeyStore interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

func (uc *stockUseCase) Reserve(ctx context.Context, input *dto.ReserveInput) (*model.StockReservation, error) {
	if input.ItemID == "" || input.LocationID == "" || input.HolderRef == "" {
		return nil, invalid("item_id, location_id and holder_ref are required")
	}
	if input.Quantity <= 0 {
		return nil, invalid("quantity must be positive")
	}
	if input.TTL < 0 {
		return nil, invalid("ttl cannot be negative")
	}

	key := ""
	if input.RequestID != "" && uc.keys != nil {
		key = reserveKeyPrefix + input.RequestID
		existing, claimed, err := uc.claimRequest(ctx, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		if !claimed {
			key = ""
		}
	}

	res, err := uc.reserve(ctx, input)
	if key != "" {
		if err != nil {
			if delErr := uc.keys.Del(ctx, key); delErr != nil {
				uc.logger.Warn("failed to clear reserve idempotency key", zap.String("key", key), zap.Error(delErr))
			}
		} else if setErr := uc.keys.Set(ctx, key, res.ID, uc.cfg.IdempotencyTTL); setErr != nil {
			// a key stuck at pending would turn every retry into a duplicate
			uc.logger.Warn("failed to store reserve idempotency key", zap.String("key", key), zap.Error(setErr))
			if delErr := uc.keys.Del(ctx, key); delErr != nil {
				uc.logger.Error("reserve idempotency key left pending",
					zap.String("key", key),
					zap.String("reservation_id", res.ID),
					zap.Error(delErr),
				)
			}
		}
	}
	return res, err
}

// claimRequest marks a request ID as in flight. A replay of a finished
// request returns its reservation; a replay of one still running is
// rejected. When the key store is unreachable the request proceeds
// without the guarantee (claimed=false).
func (uc *stockUseCase) claimRequest(ctx context.Context, key string) (existing *model.StockReservation, claimed bool, err error) {
	ok, err := uc.keys.SetNX(ctx, key, pendingMarker, uc.cfg.IdempotencyTTL)
	if err != nil {
		uc.logger.Warn("idempotency store unavailable, reserving without request dedup", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if ok {
		return nil, true, nil
	}

	val, err := uc.keys.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			// expired between SetNX and Get
			return nil, false, stock.ErrDuplicateRequest
		}
		uc.logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false, stock.ErrDuplicateRequest
	}
	if val == pendingMarker {
		return nil, false, stock.ErrDuplicateRequest
	}

	res, err := uc.repo.GetReservation(ctx, val)
	if err != nil {
		return nil, false, err
	}
	return res, false, nil
}

func (uc *stockUseCase) reserve(ctx context.Context, input *dto.ReserveInput) (*model.StockReservation, error) {
	ttl := input.TTL
	if ttl == 0 {
		ttl = uc.cfg.ReservationTTL
	}
	actor := input.ActorRef
	if actor == "" {
		actor = model.ActorSystem
	}

	now := uc.cfg.Now()
	res := &model.StockReservation{
		ID:         uuid.New().String(),
		ItemID:     input.ItemID,
		LocationID: input.LocationID,
		Quantity:   input.Quantity,
		HolderRef:  input.HolderRef,
		Status:     model.ReservationActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	_, after, err := uc.guard.mutate(ctx, input.ItemID, input.LocationID, func(l *model.StockLevel) (*mutation, error) {
		if l.Available < input.Quantity {
			return nil, fmt.Errorf("%w: available %d, requested %d", stock.ErrInsufficientStock, l.Available, input.Quantity)
		}
		l.Reserved += input.Quantity
		return &mutation{
			movementType:  model.MovementReserve,
			reason:        "reserved for " + input.HolderRef,
			actor:         actor,
			reservationID: &res.ID,
			change:        &stock.ReservationChange{Create: res},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Debug("stock reserved",
		zap.String("reservation_id", res.ID),
		zap.String("item_id", res.ItemID),
		zap.String("location_id", res.LocationID),
		zap.Int64("quantity", res.Quantity),
		zap.String("holder_ref", res.HolderRef),
		zap.Time("expires_at", res.ExpiresAt),
	)
	uc.evaluateAlerts(ctx, after)
	return res, nil
}

// Extend pushes expiry forward from the later of the current expiry and now.
func (uc *stockUseCase) Extend(ctx context.Context, reservationID string, additional time.Duration) (*model.StockReservation, error) {
	if additional <= 0 {
		return nil, invalid("additional ttl must be positive")
	}

	res, err := uc.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.IsTerminal() {
		return nil, fmt.Errorf("%w: reservation is %s", stock.ErrAlreadyTerminal, res.Status)
	}

	base := res.ExpiresAt
	if now := uc.cfg.Now(); now.After(base) {
		base = now
	}
	expiresAt := base.Add(additional)

	if err := uc.repo.ExtendReservation(ctx, reservationID, expiresAt); err != nil {
		if errors.Is(err, stock.ErrReservationNotActive) {
			return nil, stock.ErrAlreadyTerminal
		}
		return nil, err
	}

	res.ExpiresAt = expiresAt
	return res, nil
}

func (uc *stockUseCase) Release(ctx context.Context, reservationID, reason, actor string) (*dto.TransitionResult, error) {
	if reason == "" {
		reason = reasonReleased
	}
	return uc.transition(ctx, reservationID, model.ReservationReleased, model.MovementRelease, reason, actor)
}

func (uc *stockUseCase) CommitSale(ctx context.Context, reservationID, actor string) (*dto.TransitionResult, error) {
	return uc.transition(ctx, reservationID, model.ReservationCommitted, model.MovementCommitSale, reasonCommitted, actor)
}

// ReleaseHolder releases every active hold owned by a checkout session.
func (uc *stockUseCase) ReleaseHolder(ctx context.Context, holderRef, reason, actor string) ([]dto.TransitionResult, error) {
	if holderRef == "" {
		return nil, invalid("holder_ref is required")
	}

	active, _, err := uc.repo.QueryReservations(ctx, &dto.ReservationFilters{
		HolderRef: holderRef,
		Status:    model.ReservationActive,
	})
	if err != nil {
		return nil, err
	}

	results := make([]dto.TransitionResult, 0, len(active))
	var errs []error
	for _, res := range active {
		out, err := uc.Release(ctx, res.ID, reason, actor)
		if err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", res.ID, err))
			continue
		}
		results = append(results, *out)
	}
	return results, errors.Join(errs...)
}

// SweepExpired expires active reservations whose expiry is before now. Each
// reservation transitions at most once no matter how many sweeps race.
func (uc *stockUseCase) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	count := 0
	var errs []error
	for {
		batch, _, err := uc.repo.QueryReservations(ctx, &dto.ReservationFilters{
			Status:        model.ReservationActive,
			ExpiresBefore: &now,
			Page:          1,
			PageSize:      uc.cfg.SweepBatchSize,
		})
		if err != nil {
			return count, errors.Join(append(errs, err)...)
		}
		if len(batch) == 0 {
			return count, errors.Join(errs...)
		}

		progressed := 0
		for _, res := range batch {
			out, err := uc.transition(ctx, res.ID, model.ReservationExpired, model.MovementExpire, reasonExpired, model.ActorSystem)
			if err != nil {
				uc.logger.Error("failed to expire reservation",
					zap.String("reservation_id", res.ID),
					zap.String("item_id", res.ItemID),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("expire %s: %w", res.ID, err))
				continue
			}
			progressed++
			if !out.NoOp {
				count++
			}
		}
		if progressed == 0 || len(batch) < uc.cfg.SweepBatchSize {
			return count, errors.Join(errs...)
		}
	}
}

func (uc *stockUseCase) transition(ctx context.Context, reservationID string, to model.ReservationStatus, movementType model.MovementType, reason, actor string) (*dto.TransitionResult, error) {
	if actor == "" {
		actor = model.ActorSystem
	}

	res, err := uc.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.IsTerminal() {
		return &dto.TransitionResult{Reservation: res, NoOp: true}, nil
	}

	at := uc.cfg.Now()
	_, after, err := uc.guard.mutate(ctx, res.ItemID, res.LocationID, func(l *model.StockLevel) (*mutation, error) {
		l.Reserved -= res.Quantity
		if to == model.ReservationCommitted {
			l.OnHand -= res.Quantity
		}
		return &mutation{
			movementType:  movementType,
			reason:        reason,
			actor:         actor,
			reservationID: &res.ID,
			change: &stock.ReservationChange{Transition: &stock.ReservationTransition{
				ReservationID: res.ID,
				To:            to,
				Reason:        reason,
				At:            at,
			}},
		}, nil
	})
	if errors.Is(err, stock.ErrReservationNotActive) {
		// another worker finished it first
		current, getErr := uc.repo.GetReservation(ctx, reservationID)
		if getErr != nil {
			return nil, getErr
		}
		return &dto.TransitionResult{Reservation: current, NoOp: true}, nil
	}
	if err != nil {
		return nil, err
	}

	res.Status = to
	res.Reason = reason
	res.ResolvedAt = &at

	uc.logger.Debug("reservation transitioned",
		zap.String("reservation_id", res.ID),
		zap.String("status", string(to)),
		zap.String("item_id", res.ItemID),
		zap.String("location_id", res.LocationID),
		zap.Int64("quantity", res.Quantity),
	)
	uc.evaluateAlerts(ctx, after)
	return &dto.TransitionResult{Reservation: res, Level: after, NoOp: false}, nil
}
