package model

import "time"

type AlertType string

const (
	AlertLowStock     AlertType = "low_stock"
	AlertOutOfStock   AlertType = "out_of_stock"
	AlertReorderPoint AlertType = "reorder_point"
	AlertOverstock    AlertType = "overstock"
)

// AlertTypes lists every type in evaluation order.
var AlertTypes = []AlertType{AlertOutOfStock, AlertReorderPoint, AlertLowStock, AlertOverstock}

func (t AlertType) Valid() bool {
	switch t {
	case AlertLowStock, AlertOutOfStock, AlertReorderPoint, AlertOverstock:
		return true
	}
	return false
}

type AlertPriority string

const (
	PriorityLow    AlertPriority = "low"
	PriorityMedium AlertPriority = "medium"
	PriorityHigh   AlertPriority = "high"
)

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertSnoozed      AlertStatus = "snoozed"
	AlertResolved     AlertStatus = "resolved"
	AlertCancelled    AlertStatus = "cancelled"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertActive, AlertAcknowledged, AlertSnoozed, AlertResolved, AlertCancelled:
		return true
	}
	return false
}

// Open reports whether the alert still represents an ongoing condition.
func (s AlertStatus) Open() bool {
	return s == AlertActive || s == AlertAcknowledged || s == AlertSnoozed
}

// StockAlert is unique per (item, location, type).
type StockAlert struct {
	ID              string        `db:"id" json:"id"`
	ItemID          string        `db:"item_id" json:"item_id"`
	LocationID      string        `db:"location_id" json:"location_id"`
	AlertType       AlertType     `db:"alert_type" json:"alert_type"`
	ThresholdValue  int64         `db:"threshold_value" json:"threshold_value"`
	CurrentValue    int64         `db:"current_value" json:"current_value"`
	Priority        AlertPriority `db:"priority" json:"priority"`
	Status          AlertStatus   `db:"status" json:"status"`
	SnoozedUntil    *time.Time    `db:"snoozed_until" json:"snoozed_until,omitempty"`
	ResolutionNotes string        `db:"resolution_notes" json:"resolution_notes,omitempty"`
	AcknowledgedBy  *string       `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	// LevelVersion is the stock level version the alert was last evaluated at.
	LevelVersion    int64         `db:"level_version" json:"level_version"`
	Version         int64         `db:"version" json:"version"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
	ResolvedAt      *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
}

// SnoozeElapsed reports whether a snoozed alert's window has passed.
func (a *StockAlert) SnoozeElapsed(now time.Time) bool {
	return a.Status == AlertSnoozed && (a.SnoozedUntil == nil || !now.Before(*a.SnoozedUntil))
}
