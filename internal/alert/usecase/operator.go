package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/alert"
	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"go.uber.org/zap"
)

func (uc *alertUseCase) Acknowledge(ctx context.Context, id, actor string) (*model.StockAlert, error) {
	return uc.operate(ctx, id, actor, dto.EventAcknowledged, func(a *model.StockAlert, now time.Time) error {
		a.Status = model.AlertAcknowledged
		a.SnoozedUntil = nil
		a.AcknowledgedBy = &actor
		return nil
	})
}

func (uc *alertUseCase) Resolve(ctx context.Context, id, notes, actor string) (*model.StockAlert, error) {
	return uc.operate(ctx, id, actor, dto.EventResolved, func(a *model.StockAlert, now time.Time) error {
		a.Status = model.AlertResolved
		a.SnoozedUntil = nil
		a.ResolutionNotes = notes
		a.ResolvedAt = &now
		return nil
	})
}

// Snooze silences the alert until the given time. A zero until uses the
// configured default window.
func (uc *alertUseCase) Snooze(ctx context.Context, id string, until time.Time, actor string) (*model.StockAlert, error) {
	return uc.operate(ctx, id, actor, dto.EventSnoozed, func(a *model.StockAlert, now time.Time) error {
		if until.IsZero() {
			until = now.Add(uc.cfg.DefaultSnooze)
		}
		if !until.After(now) {
			return fmt.Errorf("%w: snooze must end in the future", alert.ErrInvalidArgument)
		}
		a.Status = model.AlertSnoozed
		a.SnoozedUntil = &until
		return nil
	})
}

func (uc *alertUseCase) Cancel(ctx context.Context, id, actor string) (*model.StockAlert, error) {
	return uc.operate(ctx, id, actor, dto.EventCancelled, func(a *model.StockAlert, now time.Time) error {
		a.Status = model.AlertCancelled
		a.SnoozedUntil = nil
		return nil
	})
}

func (uc *alertUseCase) operate(ctx context.Context, id, actor, eventType string, change func(a *model.StockAlert, now time.Time) error) (*model.StockAlert, error) {
	if id == "" || actor == "" {
		return nil, fmt.Errorf("%w: alert id and actor are required", alert.ErrInvalidArgument)
	}

	var out *model.StockAlert
	err := uc.retry(func() error {
		a, err := uc.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.Open() {
			return fmt.Errorf("%w: alert is %s", alert.ErrAlertClosed, a.Status)
		}

		now := uc.now()
		if err := change(a, now); err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := uc.repo.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("stock alert "+string(out.Status),
		zap.String("alert_id", out.ID),
		zap.String("actor_ref", actor),
	)
	uc.notify(ctx, eventType, out, actor)
	return out, nil
}

func (uc *alertUseCase) Get(ctx context.Context, id string) (*model.StockAlert, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *alertUseCase) List(ctx context.Context, filters *dto.AlertFilters) ([]model.StockAlert, int, error) {
	return uc.repo.List(ctx, filters)
}

func (uc *alertUseCase) Summary(ctx context.Context) (*dto.Summary, error) {
	return uc.repo.Summary(ctx)
}
