package stock

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
)

// UseCase is the stock ledger: the only way stock levels change.
type UseCase interface {
	CreateLevel(ctx context.Context, input *dto.CreateLevelInput) (*model.StockLevel, error)
	UpdateThresholds(ctx context.Context, input *dto.UpdateThresholdsInput) (*model.StockLevel, error)
	Query(ctx context.Context, itemID, locationID string) (*model.StockLevel, error)
	Adjust(ctx context.Context, input *dto.AdjustInput) (*model.StockLevel, error)

	Reserve(ctx context.Context, input *dto.ReserveInput) (*model.StockReservation, error)
	Extend(ctx context.Context, reservationID string, additional time.Duration) (*model.StockReservation, error)
	Release(ctx context.Context, reservationID, reason, actor string) (*dto.TransitionResult, error)
	ReleaseHolder(ctx context.Context, holderRef, reason, actor string) ([]dto.TransitionResult, error)
	CommitSale(ctx context.Context, reservationID, actor string) (*dto.TransitionResult, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)

	GetReservation(ctx context.Context, id string) (*model.StockReservation, error)
	ListLevels(ctx context.Context, filters *dto.LevelFilters) ([]model.StockLevel, int, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
	ListReservations(ctx context.Context, filters *dto.ReservationFilters) ([]model.StockReservation, int, error)
	Reconcile(ctx context.Context, itemID, locationID string) (*dto.ReconcileReport, error)
}

// AlertEvaluator reacts to every committed stock change.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, level *model.StockLevel) error
}
