package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/alert"
	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	alerts map[string]model.StockAlert
	keys   map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		alerts: make(map[string]model.StockAlert),
		keys:   make(map[string]string),
	}
}

func alertKey(itemID, locationID string, alertType model.AlertType) string {
	return itemID + "\x00" + locationID + "\x00" + string(alertType)
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*model.StockAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, alert.ErrNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetByKey(ctx context.Context, itemID, locationID string, alertType model.AlertType) (*model.StockAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.keys[alertKey(itemID, locationID, alertType)]
	if !ok {
		return nil, alert.ErrNotFound
	}
	a := r.alerts[id]
	return &a, nil
}

func (r *MemoryRepository) Create(ctx context.Context, a *model.StockAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := alertKey(a.ItemID, a.LocationID, a.AlertType)
	if _, ok := r.keys[key]; ok {
		return alert.ErrAlertExists
	}
	if _, ok := r.alerts[a.ID]; ok {
		return alert.ErrAlertExists
	}
	r.keys[key] = a.ID
	r.alerts[a.ID] = *a
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, a *model.StockAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.alerts[a.ID]
	if !ok || current.Version != a.Version {
		return alert.ErrAlertConflict
	}
	a.Version++
	r.alerts[a.ID] = *a
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, f *dto.AlertFilters) ([]model.StockAlert, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []model.StockAlert{}
	for _, a := range r.alerts {
		if f.ItemID != "" && a.ItemID != f.ItemID {
			continue
		}
		if f.LocationID != "" && a.LocationID != f.LocationID {
			continue
		}
		if f.AlertType != "" && a.AlertType != f.AlertType {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Priority != "" && a.Priority != f.Priority {
			continue
		}
		if !inRange(a.CreatedAt, f.StartDate, f.EndDate) {
			continue
		}
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})

	total := len(items)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.PageSize
		if start >= total {
			return []model.StockAlert{}, total, nil
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		items = items[start:end]
	}
	return items, total, nil
}

func (r *MemoryRepository) Summary(ctx context.Context) (*dto.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summary := dto.NewSummary()
	for _, a := range r.alerts {
		summary.Add(a.AlertType, a.Status, 1)
	}
	return summary, nil
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}
