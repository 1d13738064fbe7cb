package dto

import (
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type LevelFilters struct {
	ItemID     string
	LocationID string
	LowStock   bool // available <= reorder_point AND reorder_point > 0
	Page       int
	PageSize   int
}

type MovementFilters struct {
	ItemID        string
	LocationID    string
	MovementType  model.MovementType
	ReservationID string
	StartDate     *time.Time
	EndDate       *time.Time
	Ascending     bool // replay order (sequence ASC); default is newest first
	Page          int
	PageSize      int
}

type ReservationFilters struct {
	ItemID        string
	LocationID    string
	HolderRef     string
	Status        model.ReservationStatus
	ExpiresBefore *time.Time
	StartDate     *time.Time
	EndDate       *time.Time
	Page          int
	PageSize      int
}

// TransitionResult reports a release/commit/expire. NoOp is set when the
// reservation was already terminal and nothing changed.
type TransitionResult struct {
	Reservation *model.StockReservation `json:"reservation"`
	Level       *model.StockLevel       `json:"level,omitempty"`
	NoOp        bool                    `json:"no_op"`
}

type ReconcileReport struct {
	ItemID           string  `json:"item_id"`
	LocationID       string  `json:"location_id"`
	OnHand           int64   `json:"on_hand"`
	Reserved         int64   `json:"reserved"`
	BaselineOnHand   int64   `json:"baseline_on_hand"`
	ReplayedOnHand   int64   `json:"replayed_on_hand"`
	ReplayedReserved int64   `json:"replayed_reserved"`
	MovementCount    int     `json:"movement_count"`
	Breaks           []int64 `json:"breaks,omitempty"` // sequences whose quantity_before does not follow the previous entry
	Consistent       bool    `json:"consistent"`
}
