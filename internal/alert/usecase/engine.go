package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/alert"
	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeAttempts    = 3
	evaluateRounds   = 3
	autoResolveNotes = "auto-resolved: condition cleared"
	defaultSnooze    = 4 * time.Hour
)

// LevelReader gives the engine the current stock level. The stock
// repository satisfies it.
type LevelReader interface {
	GetLevel(ctx context.Context, itemID, locationID string) (*model.StockLevel, error)
}

type alertUseCase struct {
	repo     alert.Repository
	notifier alert.Notifier
	levels   LevelReader
	cfg      config.AlertConfig
	now      func() time.Time
	logger   logger.ZapLogger
}

type Option func(*alertUseCase)

// WithLevelReader makes Evaluate work from the stored level instead of the
// snapshot it is handed, so overlapping evaluations settle on the latest
// state.
func WithLevelReader(r LevelReader) Option {
	return func(uc *alertUseCase) {
		uc.levels = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(uc *alertUseCase) {
		uc.now = now
	}
}

// NewAlertUseCase builds the engine. notifier may be nil, in which case
// state changes are only persisted.
func NewAlertUseCase(repo alert.Repository, notifier alert.Notifier, cfg config.AlertConfig, log logger.ZapLogger, opts ...Option) alert.UseCase {
	if cfg.DefaultSnooze <= 0 {
		cfg.DefaultSnooze = defaultSnooze
	}
	uc := &alertUseCase{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   log,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

type condition struct {
	alertType model.AlertType
	holds     bool
	threshold int64
	current   int64
	priority  model.AlertPriority
}

// conditions evaluates every alert type against one level. At most one of
// reorder_point and low_stock holds at a time.
func (uc *alertUseCase) conditions(l *model.StockLevel) []condition {
	available := l.Available

	lowThreshold := uc.cfg.LowStockThreshold
	if lowThreshold <= 0 {
		lowThreshold = l.ReorderPoint
	}
	separateReorder := l.ReorderPoint > 0 && uc.cfg.LowStockThreshold > l.ReorderPoint

	reorder := condition{
		alertType: model.AlertReorderPoint,
		holds:     separateReorder && available > 0 && available <= l.ReorderPoint,
		threshold: l.ReorderPoint,
		current:   available,
		priority:  model.PriorityMedium,
	}

	return []condition{
		{
			alertType: model.AlertOutOfStock,
			holds:     available <= 0,
			threshold: 0,
			current:   available,
			priority:  model.PriorityHigh,
		},
		reorder,
		{
			alertType: model.AlertLowStock,
			holds:     !reorder.holds && lowThreshold > 0 && available > 0 && available <= lowThreshold,
			threshold: lowThreshold,
			current:   available,
			priority:  model.PriorityMedium,
		},
		{
			alertType: model.AlertOverstock,
			holds:     l.MaximumStock > 0 && l.OnHand > l.MaximumStock,
			threshold: l.MaximumStock,
			current:   l.OnHand,
			priority:  model.PriorityLow,
		},
	}
}

func (uc *alertUseCase) Evaluate(ctx context.Context, level *model.StockLevel) error {
	if level == nil {
		return nil
	}

	current := uc.latest(ctx, level)
	for round := 0; ; round++ {
		if err := uc.evaluate(ctx, current); err != nil {
			return err
		}
		if uc.levels == nil || round+1 >= evaluateRounds {
			return nil
		}
		// a mutation that landed while we wrote may have been evaluated
		// before us against an older alert state
		next := uc.latest(ctx, current)
		if next.Version == current.Version {
			return nil
		}
		current = next
	}
}

// latest returns the stored level when it is at least as new as snapshot.
func (uc *alertUseCase) latest(ctx context.Context, snapshot *model.StockLevel) *model.StockLevel {
	if uc.levels == nil {
		return snapshot
	}
	stored, err := uc.levels.GetLevel(ctx, snapshot.ItemID, snapshot.LocationID)
	if err != nil {
		uc.logger.Warn("failed to reload stock level for alert evaluation",
			zap.String("item_id", snapshot.ItemID),
			zap.String("location_id", snapshot.LocationID),
			zap.Error(err),
		)
		return snapshot
	}
	if stored.Version < snapshot.Version {
		return snapshot
	}
	return stored
}

func (uc *alertUseCase) evaluate(ctx context.Context, level *model.StockLevel) error {
	var errs []error
	for _, c := range uc.conditions(level) {
		c := c
		err := uc.retry(func() error {
			return uc.apply(ctx, level, c)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("evaluate %s: %w", c.alertType, err))
		}
	}
	return errors.Join(errs...)
}

// apply moves the stored alert for one condition toward the condition's
// current truth.
func (uc *alertUseCase) apply(ctx context.Context, level *model.StockLevel, c condition) error {
	existing, err := uc.repo.GetByKey(ctx, level.ItemID, level.LocationID, c.alertType)
	if errors.Is(err, alert.ErrNotFound) {
		if !c.holds {
			return nil
		}
		return uc.create(ctx, level, c)
	}
	if err != nil {
		return err
	}
	if existing.LevelVersion > level.Version {
		// already evaluated against a newer level
		return nil
	}

	now := uc.now()
	a := existing
	event := ""

	switch {
	case c.holds && a.Status == model.AlertCancelled:
		return nil

	case c.holds && (a.Status == model.AlertResolved || a.SnoozeElapsed(now)):
		a.Status = model.AlertActive
		a.SnoozedUntil = nil
		a.ResolvedAt = nil
		a.ResolutionNotes = ""
		a.AcknowledgedBy = nil
		event = dto.EventReopened

	case c.holds:
		if a.CurrentValue == c.current && a.ThresholdValue == c.threshold && a.Priority == c.priority {
			return nil
		}
		event = dto.EventUpdated

	case a.Status.Open() || a.Status == model.AlertCancelled:
		a.Status = model.AlertResolved
		a.SnoozedUntil = nil
		a.ResolutionNotes = autoResolveNotes
		a.ResolvedAt = &now
		event = dto.EventResolved

	default:
		return nil
	}

	a.CurrentValue = c.current
	a.ThresholdValue = c.threshold
	a.Priority = c.priority
	a.LevelVersion = level.Version
	a.UpdatedAt = now
	if err := uc.repo.Update(ctx, a); err != nil {
		return err
	}

	uc.logger.Info("stock alert "+string(a.Status),
		zap.String("alert_id", a.ID),
		zap.String("alert_type", string(a.AlertType)),
		zap.String("item_id", a.ItemID),
		zap.String("location_id", a.LocationID),
		zap.Int64("current_value", a.CurrentValue),
	)
	uc.notify(ctx, event, a, model.ActorSystem)
	return nil
}

func (uc *alertUseCase) create(ctx context.Context, level *model.StockLevel, c condition) error {
	now := uc.now()
	a := &model.StockAlert{
		ID:             uuid.New().String(),
		ItemID:         level.ItemID,
		LocationID:     level.LocationID,
		AlertType:      c.alertType,
		ThresholdValue: c.threshold,
		CurrentValue:   c.current,
		Priority:       c.priority,
		Status:         model.AlertActive,
		LevelVersion:   level.Version,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.repo.Create(ctx, a); err != nil {
		return err
	}

	uc.logger.Info("stock alert raised",
		zap.String("alert_id", a.ID),
		zap.String("alert_type", string(a.AlertType)),
		zap.String("item_id", a.ItemID),
		zap.String("location_id", a.LocationID),
		zap.Int64("current_value", a.CurrentValue),
		zap.Int64("threshold_value", a.ThresholdValue),
	)
	uc.notify(ctx, dto.EventCreated, a, model.ActorSystem)
	return nil
}

// retry reruns fn when a concurrent writer got to the alert first.
func (uc *alertUseCase) retry(fn func() error) error {
	var err error
	for i := 0; i < writeAttempts; i++ {
		err = fn()
		if !errors.Is(err, alert.ErrAlertConflict) && !errors.Is(err, alert.ErrAlertExists) {
			return err
		}
	}
	return err
}

// notify publishes a state change. Refreshes of a snoozed alert stay quiet
// until the snooze passes.
func (uc *alertUseCase) notify(ctx context.Context, eventType string, a *model.StockAlert, actor string) {
	if uc.notifier == nil {
		return
	}
	if a.Status == model.AlertSnoozed && eventType != dto.EventSnoozed {
		return
	}

	event := &dto.AlertEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Alert:     *a,
		Channels:  uc.cfg.Routing[string(a.AlertType)],
		ActorRef:  actor,
		Timestamp: uc.now(),
	}
	if err := uc.notifier.Notify(ctx, event); err != nil {
		uc.logger.Warn("failed to publish alert event",
			zap.String("event_type", eventType),
			zap.String("alert_id", a.ID),
			zap.Error(err),
		)
	}
}
