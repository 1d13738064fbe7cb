package stock

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
)

type Repository interface {
	// Stock levels
	GetLevel(ctx context.Context, itemID, locationID string) (*model.StockLevel, error)
	CreateLevel(ctx context.Context, level *model.StockLevel) error
	ListLevels(ctx context.Context, filters *dto.LevelFilters) ([]model.StockLevel, int, error)

	// CompareAndSwap writes level iff the stored version equals expectedVersion
	// and bumps level.Version. A non-nil change is applied in the same
	// transaction; a transition whose reservation is no longer active fails
	// with ErrReservationNotActive and nothing is written.
	CompareAndSwap(ctx context.Context, level *model.StockLevel, expectedVersion int64, change *ReservationChange) error

	// Movements / Audit
	AppendMovement(ctx context.Context, movement *model.StockMovement) error
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)

	// Reservations
	GetReservation(ctx context.Context, id string) (*model.StockReservation, error)
	ExtendReservation(ctx context.Context, id string, expiresAt time.Time) error
	QueryReservations(ctx context.Context, filters *dto.ReservationFilters) ([]model.StockReservation, int, error)

	Ping(ctx context.Context) error
}

// ReservationChange is the reservation side effect of a stock swap. Exactly
// one of Create or Transition is set.
type ReservationChange struct {
	Create     *model.StockReservation
	Transition *ReservationTransition
}

// ReservationTransition moves an active reservation to a terminal status.
type ReservationTransition struct {
	ReservationID string
	To            model.ReservationStatus
	Reason        string
	At            time.Time
}
