package alert

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type Repository interface {
	GetByID(ctx context.Context, id string) (*model.StockAlert, error)
	GetByKey(ctx context.Context, itemID, locationID string, alertType model.AlertType) (*model.StockAlert, error)

	// Create fails with ErrAlertExists when the (item, location, type) key is taken.
	Create(ctx context.Context, a *model.StockAlert) error
	// Update writes a iff its stored version still equals a.Version, then bumps it.
	Update(ctx context.Context, a *model.StockAlert) error

	List(ctx context.Context, filters *dto.AlertFilters) ([]model.StockAlert, int, error)
	Summary(ctx context.Context) (*dto.Summary, error)
}
