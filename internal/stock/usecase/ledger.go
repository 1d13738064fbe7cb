package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	ReservationTTL time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	IdempotencyTTL time.Duration
	SweepBatchSize int
	// Now is the clock; tests replace it.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ReservationTTL: 15 * time.Minute,
		MaxRetries:     5,
		BackoffBase:    10 * time.Millisecond,
		BackoffMax:     200 * time.Millisecond,
		IdempotencyTTL: 24 * time.Hour,
		SweepBatchSize: 500,
		Now:            time.Now,
	}
}

type stockUseCase struct {
	repo   stock.Repository
	guard  *guard
	alerts stock.AlertEvaluator
	keys   KeyStore
	cfg    Config
	logger logger.ZapLogger
}

// NewStockUseCase wires the ledger. alerts and keys may be nil: alert
// evaluation and request idempotency are then skipped.
func NewStockUseCase(repo stock.Repository, alerts stock.AlertEvaluator, keys KeyStore, cfg Config, log logger.ZapLogger) stock.UseCase {
	def := DefaultConfig()
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = def.ReservationTTL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = def.SweepBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &stockUseCase{
		repo: repo,
		guard: &guard{
			repo:       repo,
			recorder:   &recorder{repo: repo, logger: log},
			maxRetries: cfg.MaxRetries,
			base:       cfg.BackoffBase,
			max:        cfg.BackoffMax,
			now:        cfg.Now,
			logger:     log,
		},
		alerts: alerts,
		keys:   keys,
		cfg:    cfg,
		logger: log,
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", stock.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func (uc *stockUseCase) CreateLevel(ctx context.Context, input *dto.CreateLevelInput) (*model.StockLevel, error) {
	if input.ItemID == "" || input.LocationID == "" {
		return nil, invalid("item_id and location_id are required")
	}
	if input.OnHand < 0 || input.ReorderPoint < 0 || input.MaximumStock < 0 {
		return nil, invalid("quantities cannot be negative")
	}
	if input.OnHand > 0 && input.ActorRef == "" {
		return nil, invalid("actor is required for opening stock")
	}

	now := uc.cfg.Now()
	level := &model.StockLevel{
		ID:           uuid.New().String(),
		ItemID:       input.ItemID,
		LocationID:   input.LocationID,
		ReorderPoint: input.ReorderPoint,
		MaximumStock: input.MaximumStock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := uc.repo.CreateLevel(ctx, level); err != nil {
		return nil, err
	}

	// Opening stock goes through the ledger so the audit trail starts at zero.
	if input.OnHand > 0 {
		reason := input.Reason
		if reason == "" {
			reason = "opening stock"
		}
		_, after, err := uc.guard.mutate(ctx, level.ItemID, level.LocationID, func(l *model.StockLevel) (*mutation, error) {
			l.OnHand += input.OnHand
			return &mutation{movementType: model.MovementRestock, reason: reason, actor: input.ActorRef}, nil
		})
		if err != nil {
			return nil, err
		}
		level = after
	}

	uc.logger.Info("stock level created",
		zap.String("item_id", level.ItemID),
		zap.String("location_id", level.LocationID),
		zap.Int64("on_hand", level.OnHand),
	)
	uc.evaluateAlerts(ctx, level)
	return level, nil
}

func (uc *stockUseCase) UpdateThresholds(ctx context.Context, input *dto.UpdateThresholdsInput) (*model.StockLevel, error) {
	if input.ReorderPoint < 0 || input.MaximumStock < 0 {
		return nil, invalid("thresholds cannot be negative")
	}

	_, after, err := uc.guard.mutate(ctx, input.ItemID, input.LocationID, func(l *model.StockLevel) (*mutation, error) {
		l.ReorderPoint = input.ReorderPoint
		l.MaximumStock = input.MaximumStock
		return &mutation{}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.evaluateAlerts(ctx, after)
	return after, nil
}

func (uc *stockUseCase) Query(ctx context.Context, itemID, locationID string) (*model.StockLevel, error) {
	return uc.repo.GetLevel(ctx, itemID, locationID)
}

func (uc *stockUseCase) Adjust(ctx context.Context, input *dto.AdjustInput) (*model.StockLevel, error) {
	if input.Delta == 0 {
		return nil, invalid("delta must be non-zero")
	}
	if input.Reason == "" || input.ActorRef == "" {
		return nil, invalid("reason and actor are required")
	}

	movementType := model.MovementRestock
	if input.Delta < 0 {
		movementType = model.MovementManualAdjustment
	}

	_, after, err := uc.guard.mutate(ctx, input.ItemID, input.LocationID, func(l *model.StockLevel) (*mutation, error) {
		onHand := l.OnHand + input.Delta
		if onHand < 0 || onHand < l.Reserved {
			return nil, fmt.Errorf("%w: on_hand %d, reserved %d, delta %d",
				stock.ErrInvalidAdjustment, l.OnHand, l.Reserved, input.Delta)
		}
		l.OnHand = onHand
		return &mutation{movementType: movementType, reason: input.Reason, actor: input.ActorRef}, nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("stock adjusted",
		zap.String("item_id", input.ItemID),
		zap.String("location_id", input.LocationID),
		zap.Int64("delta", input.Delta),
		zap.Int64("on_hand", after.OnHand),
		zap.String("actor_ref", input.ActorRef),
		zap.String("reason", input.Reason),
	)
	uc.evaluateAlerts(ctx, after)
	return after, nil
}

func (uc *stockUseCase) GetReservation(ctx context.Context, id string) (*model.StockReservation, error) {
	return uc.repo.GetReservation(ctx, id)
}

func (uc *stockUseCase) ListLevels(ctx context.Context, filters *dto.LevelFilters) ([]model.StockLevel, int, error) {
	return uc.repo.ListLevels(ctx, filters)
}

func (uc *stockUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error) {
	return uc.repo.ListMovements(ctx, filters)
}

func (uc *stockUseCase) ListReservations(ctx context.Context, filters *dto.ReservationFilters) ([]model.StockReservation, int, error) {
	return uc.repo.QueryReservations(ctx, filters)
}

// Reconcile replays the movement log in sequence order and compares the
// result with the stored level.
func (uc *stockUseCase) Reconcile(ctx context.Context, itemID, locationID string) (*dto.ReconcileReport, error) {
	level, err := uc.repo.GetLevel(ctx, itemID, locationID)
	if err != nil {
		return nil, err
	}
	movements, _, err := uc.repo.ListMovements(ctx, &dto.MovementFilters{
		ItemID:     itemID,
		LocationID: locationID,
		Ascending:  true,
	})
	if err != nil {
		return nil, err
	}

	report := &dto.ReconcileReport{
		ItemID:        itemID,
		LocationID:    locationID,
		OnHand:        level.OnHand,
		Reserved:      level.Reserved,
		MovementCount: len(movements),
	}
	if len(movements) == 0 {
		report.BaselineOnHand = level.OnHand
		report.ReplayedOnHand = level.OnHand
		report.ReplayedReserved = level.Reserved
		report.Consistent = true
		return report, nil
	}

	report.BaselineOnHand = movements[0].QuantityBefore
	onHand, reserved := report.BaselineOnHand, int64(0)
	for _, m := range movements {
		if m.QuantityBefore != onHand {
			report.Breaks = append(report.Breaks, m.Sequence)
		}
		onHand += m.QuantityDelta
		reserved += m.ReservedDelta
	}
	report.ReplayedOnHand = onHand
	report.ReplayedReserved = reserved
	report.Consistent = onHand == level.OnHand && reserved == level.Reserved && len(report.Breaks) == 0

	if !report.Consistent {
		uc.logger.Warn("movement log does not reproduce stock level",
			zap.String("item_id", itemID),
			zap.String("location_id", locationID),
			zap.Int64("on_hand", level.OnHand),
			zap.Int64("replayed_on_hand", onHand),
			zap.Int64("reserved", level.Reserved),
			zap.Int64("replayed_reserved", reserved),
		)
	}
	return report, nil
}

func (uc *stockUseCase) evaluateAlerts(ctx context.Context, level *model.StockLevel) {
	if uc.alerts == nil || level == nil {
		return
	}
	if err := uc.alerts.Evaluate(ctx, level); err != nil {
		uc.logger.Error("alert evaluation failed",
			zap.String("item_id", level.ItemID),
			zap.String("location_id", level.LocationID),
			zap.Error(err),
		)
	}
}
