package alert

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type UseCase interface {
	Evaluate(ctx context.Context, level *model.StockLevel) error

	Acknowledge(ctx context.Context, id, actor string) (*model.StockAlert, error)
	Resolve(ctx context.Context, id, notes, actor string) (*model.StockAlert, error)
	Snooze(ctx context.Context, id string, until time.Time, actor string) (*model.StockAlert, error)
	Cancel(ctx context.Context, id, actor string) (*model.StockAlert, error)

	Get(ctx context.Context, id string) (*model.StockAlert, error)
	List(ctx context.Context, filters *dto.AlertFilters) ([]model.StockAlert, int, error)
	Summary(ctx context.Context) (*dto.Summary, error)
}

// Notifier hands alert state changes to the external delivery system.
type Notifier interface {
	Notify(ctx context.Context, event *dto.AlertEvent) error
}
