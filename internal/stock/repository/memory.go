package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
)

// MemoryRepository keeps everything in process. It honours the same
// compare-and-swap contract as the SQL store and backs tests and local runs.
type MemoryRepository struct {
	mu           sync.RWMutex
	levels       map[string]model.StockLevel
	reservations map[string]model.StockReservation
	movements    []model.StockMovement
	movementIDs  map[string]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		levels:       make(map[string]model.StockLevel),
		reservations: make(map[string]model.StockReservation),
		movementIDs:  make(map[string]struct{}),
	}
}

func levelKey(itemID, locationID string) string {
	return itemID + "\x00" + locationID
}

func (r *MemoryRepository) GetLevel(ctx context.Context, itemID, locationID string) (*model.StockLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	level, ok := r.levels[levelKey(itemID, locationID)]
	if !ok {
		return nil, stock.ErrNotFound
	}
	return &level, nil
}

func (r *MemoryRepository) CreateLevel(ctx context.Context, level *model.StockLevel) error {
	if err := level.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := levelKey(level.ItemID, level.LocationID)
	if _, ok := r.levels[key]; ok {
		return stock.ErrLevelExists
	}
	level.Normalize()
	r.levels[key] = *level
	return nil
}

func (r *MemoryRepository) ListLevels(ctx context.Context, f *dto.LevelFilters) ([]model.StockLevel, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []model.StockLevel{}
	for _, l := range r.levels {
		if f.ItemID != "" && l.ItemID != f.ItemID {
			continue
		}
		if f.LocationID != "" && l.LocationID != f.LocationID {
			continue
		}
		if f.LowStock && !(l.ReorderPoint > 0 && l.Available <= l.ReorderPoint) {
			continue
		}
		items = append(items, l)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func (r *MemoryRepository) CompareAndSwap(ctx context.Context, level *model.StockLevel, expectedVersion int64, change *stock.ReservationChange) error {
	if err := level.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := levelKey(level.ItemID, level.LocationID)
	current, ok := r.levels[key]
	if !ok {
		return stock.ErrNotFound
	}

	var transitioned *model.StockReservation
	if change != nil && change.Transition != nil {
		res, ok := r.reservations[change.Transition.ReservationID]
		if !ok || res.Status != model.ReservationActive {
			return stock.ErrReservationNotActive
		}
		transitioned = &res
	}

	if current.Version != expectedVersion {
		return stock.ErrVersionConflict
	}

	next := *level
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = expectedVersion + 1
	next.Normalize()
	r.levels[key] = next

	if transitioned != nil {
		t := change.Transition
		at := t.At
		transitioned.Status = t.To
		transitioned.Reason = t.Reason
		transitioned.ResolvedAt = &at
		r.reservations[transitioned.ID] = *transitioned
	}
	if change != nil && change.Create != nil {
		r.reservations[change.Create.ID] = *change.Create
	}

	level.Version = next.Version
	level.Normalize()
	return nil
}

func (r *MemoryRepository) AppendMovement(ctx context.Context, m *model.StockMovement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.movementIDs[m.ID]; ok {
		return stock.ErrDuplicateMovement
	}
	r.movementIDs[m.ID] = struct{}{}
	r.movements = append(r.movements, *m)
	return nil
}

func (r *MemoryRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []model.StockMovement{}
	for _, m := range r.movements {
		if f.ItemID != "" && m.ItemID != f.ItemID {
			continue
		}
		if f.LocationID != "" && m.LocationID != f.LocationID {
			continue
		}
		if f.MovementType != "" && m.MovementType != f.MovementType {
			continue
		}
		if f.ReservationID != "" && (m.ReservationID == nil || *m.ReservationID != f.ReservationID) {
			continue
		}
		if !inRange(m.OccurredAt, f.StartDate, f.EndDate) {
			continue
		}
		items = append(items, m)
	}

	if f.Ascending {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Sequence < items[j].Sequence
		})
	} else {
		sort.SliceStable(items, func(i, j int) bool {
			if !items[i].OccurredAt.Equal(items[j].OccurredAt) {
				return items[i].OccurredAt.After(items[j].OccurredAt)
			}
			return items[i].Sequence > items[j].Sequence
		})
	}
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func (r *MemoryRepository) GetReservation(ctx context.Context, id string) (*model.StockReservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, stock.ErrNotFound
	}
	return &res, nil
}

func (r *MemoryRepository) ExtendReservation(ctx context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok || res.Status != model.ReservationActive {
		return stock.ErrReservationNotActive
	}
	res.ExpiresAt = expiresAt
	r.reservations[id] = res
	return nil
}

func (r *MemoryRepository) QueryReservations(ctx context.Context, f *dto.ReservationFilters) ([]model.StockReservation, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []model.StockReservation{}
	for _, res := range r.reservations {
		if f.ItemID != "" && res.ItemID != f.ItemID {
			continue
		}
		if f.LocationID != "" && res.LocationID != f.LocationID {
			continue
		}
		if f.HolderRef != "" && res.HolderRef != f.HolderRef {
			continue
		}
		if f.Status != "" && res.Status != f.Status {
			continue
		}
		if f.ExpiresBefore != nil && !res.ExpiresAt.Before(*f.ExpiresBefore) {
			continue
		}
		if !inRange(res.CreatedAt, f.StartDate, f.EndDate) {
			continue
		}
		items = append(items, res)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
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

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
