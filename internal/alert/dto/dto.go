package dto

import (
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type AlertFilters struct {
	ItemID     string
	LocationID string
	AlertType  model.AlertType
	Status     model.AlertStatus
	Priority   model.AlertPriority
	StartDate  *time.Time
	EndDate    *time.Time
	Page       int
	PageSize   int
}

type Summary struct {
	ByStatus   map[string]int `json:"by_status"`
	OpenByType map[string]int `json:"open_by_type"`
}

const (
	EventCreated      = "StockAlertCreated"
	EventReopened     = "StockAlertReopened"
	EventUpdated      = "StockAlertUpdated"
	EventResolved     = "StockAlertResolved"
	EventAcknowledged = "StockAlertAcknowledged"
	EventSnoozed      = "StockAlertSnoozed"
	EventCancelled    = "StockAlertCancelled"
)

type AlertEvent struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Alert     model.StockAlert `json:"payload"`
	Channels  []string         `json:"channels"`
	ActorRef  string           `json:"actor_ref"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewSummary() *Summary {
	return &Summary{ByStatus: map[string]int{}, OpenByType: map[string]int{}}
}

func (s *Summary) Add(alertType model.AlertType, status model.AlertStatus, n int) {
	s.ByStatus[string(status)] += n
	if status.Open() {
		s.OpenByType[string(alertType)] += n
	}
}
