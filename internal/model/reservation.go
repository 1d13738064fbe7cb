package model

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
	ReservationExpired   ReservationStatus = "expired"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationActive, ReservationCommitted, ReservationReleased, ReservationExpired:
		return true
	}
	return false
}

type StockReservation struct {
	ID         string            `db:"id" json:"id"`
	ItemID     string            `db:"item_id" json:"item_id"`
	LocationID string            `db:"location_id" json:"location_id"`
	Quantity   int64             `db:"quantity" json:"quantity"`
	HolderRef  string            `db:"holder_ref" json:"holder_ref"`
	Status     ReservationStatus `db:"status" json:"status"`
	Reason     string            `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	ExpiresAt  time.Time         `db:"expires_at" json:"expires_at"`
	ResolvedAt *time.Time        `db:"resolved_at" json:"resolved_at,omitempty"`
}

// IsTerminal reports whether no further transitions are allowed.
func (r *StockReservation) IsTerminal() bool {
	return r.Status != ReservationActive
}

func (r *StockReservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}
