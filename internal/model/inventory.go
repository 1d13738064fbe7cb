package model

import (
	"errors"
	"time"
)

var ErrInvariantViolated = errors.New("stock invariant violated: require 0 <= reserved <= on_hand")

// StockLevel is the single authoritative record for an (item, location) pair.
type StockLevel struct {
	ID           string    `db:"id" json:"id"`
	ItemID       string    `db:"item_id" json:"item_id"`
	LocationID   string    `db:"location_id" json:"location_id"`
	OnHand       int64     `db:"on_hand" json:"on_hand"`
	Reserved     int64     `db:"reserved" json:"reserved"`
	Available    int64     `db:"available" json:"available"`
	ReorderPoint int64     `db:"reorder_point" json:"reorder_point"`
	MaximumStock int64     `db:"maximum_stock" json:"maximum_stock"`
	Version      int64     `db:"version" json:"version"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Normalize recomputes the derived Available column. Call before every write.
func (l *StockLevel) Normalize() {
	l.Available = l.OnHand - l.Reserved
}

func (l *StockLevel) Validate() error {
	if l.Reserved < 0 || l.OnHand < 0 || l.Reserved > l.OnHand {
		return ErrInvariantViolated
	}
	return nil
}

type MovementType string

const (
	MovementReserve          MovementType = "reserve"
	MovementRelease          MovementType = "release"
	MovementCommitSale       MovementType = "commit_sale"
	MovementExpire           MovementType = "expire"
	MovementManualAdjustment MovementType = "manual_adjustment"
	MovementRestock          MovementType = "restock"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementReserve, MovementRelease, MovementCommitSale, MovementExpire, MovementManualAdjustment, MovementRestock:
		return true
	}
	return false
}

// ActorSystem marks movements produced by the service itself (sweeps, payment events).
const ActorSystem = "system"

// StockMovement is an immutable audit entry. QuantityDelta, QuantityBefore and
// QuantityAfter describe on-hand; ReservedDelta describes reserved. Sequence is
// the level version written by the swap this movement records.
type StockMovement struct {
	ID             string       `db:"id" json:"id"`
	ItemID         string       `db:"item_id" json:"item_id"`
	LocationID     string       `db:"location_id" json:"location_id"`
	ReservationID  *string      `db:"reservation_id" json:"reservation_id,omitempty"`
	MovementType   MovementType `db:"movement_type" json:"movement_type"`
	QuantityDelta  int64        `db:"quantity_delta" json:"quantity_delta"`
	QuantityBefore int64        `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int64        `db:"quantity_after" json:"quantity_after"`
	ReservedDelta  int64        `db:"reserved_delta" json:"reserved_delta"`
	Sequence       int64        `db:"sequence" json:"sequence"`
	Reason         string       `db:"reason" json:"reason"`
	ActorRef       string       `db:"actor_ref" json:"actor_ref"`
	OccurredAt     time.Time    `db:"occurred_at" json:"occurred_at"`
}
