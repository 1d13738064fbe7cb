package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
	"github.com/fekuna/omnipos-stock-service/internal/stock/repository"
	"github.com/stretchr/testify/require"
)

const (
	item = "sku-1"
	loc  = "store-1"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingEvaluator struct {
	mu     sync.Mutex
	levels []model.StockLevel
	err    error
}

func (e *recordingEvaluator) Evaluate(ctx context.Context, level *model.StockLevel) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.levels = append(e.levels, *level)
	return e.err
}

func (e *recordingEvaluator) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.levels)
}

// memoryKeys is an in-process KeyStore with the same miss semantics as Redis.
type memoryKeys struct {
	mu     sync.Mutex
	data   map[string]string
	err    error
	setErr error
}

func newMemoryKeys() *memoryKeys {
	return &memoryKeys{data: map[string]string{}}
}

func (k *memoryKeys) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.err != nil {
		return false, k.err
	}
	if _, ok := k.data[key]; ok {
		return false, nil
	}
	k.data[key] = value
	return true, nil
}

func (k *memoryKeys) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.setErr != nil {
		return k.setErr
	}
	k.data[key] = value
	return nil
}

func (k *memoryKeys) Get(ctx context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (k *memoryKeys) Del(ctx context.Context, keys ...string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.data, key)
	}
	return nil
}

// conflictRepo loses every compare-and-swap.
type conflictRepo struct {
	*repository.MemoryRepository
	mu    sync.Mutex
	swaps int
}

func (r *conflictRepo) CompareAndSwap(ctx context.Context, level *model.StockLevel, expectedVersion int64, change *stock.ReservationChange) error {
	r.mu.Lock()
	r.swaps++
	r.mu.Unlock()
	return stock.ErrVersionConflict
}

// brokenLogRepo accepts stock writes but cannot append movements.
type brokenLogRepo struct {
	*repository.MemoryRepository
	appends int
}

func (r *brokenLogRepo) AppendMovement(ctx context.Context, m *model.StockMovement) error {
	r.appends++
	return errors.Join(stock.ErrRepositoryUnavailable, errors.New("connection reset"))
}

type fixture struct {
	repo   *repository.MemoryRepository
	uc     stock.UseCase
	clock  *clock
	alerts *recordingEvaluator
	keys   *memoryKeys
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()

	f := &fixture{
		repo:   repository.NewMemoryRepository(),
		clock:  newClock(),
		alerts: &recordingEvaluator{},
		keys:   newMemoryKeys(),
	}
	cfg := DefaultConfig()
	cfg.Now = f.clock.Now
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}
	f.uc = NewStockUseCase(f.repo, f.alerts, f.keys, cfg, logger.NewNopLogger())
	return f
}

func (f *fixture) seed(t *testing.T, onHand, reorderPoint int64) *model.StockLevel {
	t.Helper()
	level, err := f.uc.CreateLevel(context.Background(), &dto.CreateLevelInput{
		ItemID:       item,
		LocationID:   loc,
		OnHand:       onHand,
		ReorderPoint: reorderPoint,
		ActorRef:     "tester",
	})
	require.NoError(t, err)
	return level
}

func (f *fixture) level(t *testing.T) *model.StockLevel {
	t.Helper()
	level, err := f.uc.Query(context.Background(), item, loc)
	require.NoError(t, err)
	return level
}

func (f *fixture) reserve(t *testing.T, qty int64, ttl time.Duration) *model.StockReservation {
	t.Helper()
	res, err := f.uc.Reserve(context.Background(), &dto.ReserveInput{
		ItemID:     item,
		LocationID: loc,
		Quantity:   qty,
		HolderRef:  "cart-1",
		TTL:        ttl,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) movements(t *testing.T, movementType model.MovementType) []model.StockMovement {
	t.Helper()
	items, _, err := f.uc.ListMovements(context.Background(), &dto.MovementFilters{
		ItemID:       item,
		LocationID:   loc,
		MovementType: movementType,
		Ascending:    true,
	})
	require.NoError(t, err)
	return items
}
