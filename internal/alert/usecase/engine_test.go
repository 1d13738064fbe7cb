package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/alert"
	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/alert/repository"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []dto.AlertEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, event *dto.AlertEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *event)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.EventType
	}
	return out
}

type engineFixture struct {
	repo     *repository.MemoryRepository
	notifier *recordingNotifier
	uc       alert.UseCase
	now      time.Time
}

func newEngine(t *testing.T, cfg config.AlertConfig) *engineFixture {
	t.Helper()
	f := &engineFixture{
		repo:     repository.NewMemoryRepository(),
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.uc = NewAlertUseCase(f.repo, f.notifier, cfg, logger.NewNopLogger(), WithClock(func() time.Time { return f.now }))
	return f
}

func level(onHand, reserved, reorderPoint, maximum int64) *model.StockLevel {
	l := &model.StockLevel{
		ItemID:       "sku-1",
		LocationID:   "store-1",
		OnHand:       onHand,
		Reserved:     reserved,
		ReorderPoint: reorderPoint,
		MaximumStock: maximum,
	}
	l.Normalize()
	return l
}

func (f *engineFixture) get(t *testing.T, alertType model.AlertType) *model.StockAlert {
	t.Helper()
	a, err := f.repo.GetByKey(context.Background(), "sku-1", "store-1", alertType)
	require.NoError(t, err)
	return a
}

func (f *engineFixture) absent(t *testing.T, alertType model.AlertType) {
	t.Helper()
	_, err := f.repo.GetByKey(context.Background(), "sku-1", "store-1", alertType)
	assert.ErrorIs(t, err, alert.ErrNotFound)
}

func TestEvaluate_LowStockRaisedAndAutoResolved(t *testing.T) {
	f := newEngine(t, config.AlertConfig{})
	ctx := context.Background()

	require.NoError(t, f.uc.Evaluate(ctx, level(11, 0, 10, 0)))
	f.absent(t, model.AlertLowStock)

	require.NoError(t, f.uc.Evaluate(ctx, level(9, 0, 10, 0)))
	a := f.get(t, model.AlertLowStock)
	assert.Equal(t, model.AlertActive, a.Status)
	assert.Equal(t, int64(9), a.CurrentValue)
	assert.Equal(t, int64(10), a.ThresholdValue)
	assert.Equal(t, model.PriorityMedium, a.Priority)

	// repeated crossing does not duplicate
	require.NoError(t, f.uc.Evaluate(ctx, level(9, 0, 10, 0)))
	items, total, err := f.uc.List(ctx, &dto.AlertFilters{AlertType: model.AlertLowStock})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)

	require.NoError(t, f.uc.Evaluate(ctx, level(15, 0, 10, 0)))
	a = f.get(t, model.AlertLowStock)
	assert.Equal(t, model.AlertResolved, a.Status)
	assert.Equal(t, "auto-resolved: condition cleared", a.ResolutionNotes)
	require.NotNil(t, a.ResolvedAt)

	assert.Equal(t, []string{dto.EventCreated, dto.EventResolved}, f.notifier.types())
}

func TestEvaluate_OutOfStockReplacesLowStock(t *testing.T) {
	f := newEngine(t, config.AlertConfig{})
	ctx := context.Background()

	require.NoError(t, f.uc.Evaluate(ctx, level(5, 0, 10, 0)))
	require.NoError(t, f.uc.Evaluate(ctx, level(5, 5, 10, 0)))

	out := f.get(t, model.AlertOutOfStock)
	assert.Equal(t, model.AlertActive, out.Status)
	assert.Equal(t, model.PriorityHigh, out.Priority)
	assert.Equal(t, int64(0), out.CurrentValue)
	assert.Equal(t, model.AlertResolved, f.get(t, model.AlertLowStock).Status)
}

func TestEvaluate_SeparateReorderThreshold(t *testing.T) {
	f := newEngine(t, config.AlertConfig{LowStockThreshold: 20})
	ctx := context.Background()

	require.NoError(t, f.uc.Evaluate(ctx, level(15, 0, 10, 0)))
	low := f.get(t, model.AlertLowStock)
	assert.Equal(t, int64(20), low.ThresholdValue)
	f.absent(t, model.AlertReorderPoint)

	require.NoError(t, f.uc.Evaluate(ctx, level(8, 0, 10, 0)))
	reorder := f.get(t, model.AlertReorderPoint)
	assert.Equal(t, model.AlertActive, reorder.Status)
	assert.Equal(t, int64(10), reorder.ThresholdValue)
	assert.Equal(t, model.AlertResolved, f.get(t, model.AlertLowStock).Status)
}

func TestEvaluate_Overstock(t *testing.T) {
	f := newEngine(t, config.AlertConfig{})
	ctx := context.Background()

	require.NoError(t, f.uc.Evaluate(ctx, level(120, 0, 0, 100)))
	over := f.get(t, model.AlertOverstock)
	assert.Equal(t, model.PriorityLow, over.Priority)
	assert.Equal(t, int64(120), over.CurrentValue)
	assert.Equal(t, int64(100), over.ThresholdValue)

	require.NoError(t, f.uc.Evaluate(ctx, level(100, 0, 0, 100)))
	assert.Equal(t, model.AlertResolved, f.get(t, model.AlertOverstock).Status)
}

func TestEvaluate_ReopensResolvedAlert(t *testing.T) {
	f := newEngine(t, config.AlertConfig{})
	ctx := context.Background()

	require.NoError(t, f.uc.Evaluate(ctx, level(9, 0, 10, 0)))
	first := f.get(t, model.AlertLowStock)
	require.NoError(t, f.uc.Evaluate(ctx, level(20, 0, 10, 0)))
	require.NoError(t, f.uc.Evaluate(ctx, level(7, 0, 10, 0)))

	again := f.get(t, model.AlertLowStock)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, model.AlertActive, again.Status)
	assert.Nil(t, again.ResolvedAt)
	assert.Empty(t, again.ResolutionNotes)
	assert.Equal(t, int64(7), again.CurrentValue)
	assert.Contains(t, f.notifier.types(), dto.EventReopened)
}

func TestEvaluate_SnoozeSuppressesUntilElapsed(t *testing.T) {
	f := newEngine(t, config.AlertConfig{})
	ctx := context.Background()

	require.NoError(t, f.uc.Evaluate(ctx, level(9, 0, 10, 0)))
	a := f.get(t, model.AlertLowStock)
	_, err := f.uc.Snooze(ctx, a.ID, f.now.Add(time.Hour), "clerk")
	require.NoError(t, err)
	before := len(f.notifier.types())

	require.NoError(t, f.uc.Evaluate(ctx, level(8, 0, 10, 0)))
	a = f.get(t, model.AlertLowStock)
	assert.Equal(t, model.AlertSnoozed, a.Status)
	assert.Equal(t, int64(8), a.CurrentValue)
	assert.Len(t, f.notifier.types(), before)

	f.now = f.now.Add(2 * time.Hour)
	require.NoError(t, f.uc.Evaluate(ctx, level(8, 0, 10, 0)))
	a = f.get(t, model.AlertLowStock)
	assert.Equal(t, model.AlertActive, a.Status)
	assert.Nil(t, a.SnoozedUntil)
	assert.Equal(t, dto.EventReopened, f.notifier.types()[len(f.notifier.types())-1])
}

func TestEvaluate_CancelledStaysCancelledWhileConditionHolds(t *testing.T) {
	f := newEngine(t, config.AlertConfig{})
	ctx := context.Background()

	require.NoError(t, f.uc.Evaluate(ctx, level(9, 0, 10, 0)))
	a := f.get(t, model.AlertLowStock)
	_, err := f.uc.Cancel(ctx, a.ID, "clerk")
	require.NoError(t, err)

	require.NoError(t, f.uc.Evaluate(ctx, level(6, 0, 10, 0)))
	assert.Equal(t, model.AlertCancelled, f.get(t, model.AlertLowStock).Status)

	require.NoError(t, f.uc.Evaluate(ctx, level(30, 0, 10, 0)))
	assert.Equal(t, model.AlertResolved, f.get(t, model.AlertLowStock).Status)

	require.NoError(t, f.uc.Evaluate(ctx, level(6, 0, 10, 0)))
	assert.Equal(t, model.AlertActive, f.get(t, model.AlertLowStock).Status)
}

func TestEvaluate_ChannelsFollowRouting(t *testing.T) {
	f := newEngine(t, config.AlertConfig{Routing: map[string][]string{
		"out_of_stock": {"sms", "email"},
	}})

	require.NoError(t, f.uc.Evaluate(context.Background(), level(0, 0, 10, 0)))
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, []string{"sms", "email"}, f.notifier.events[0].Channels)
	assert.Equal(t, model.ActorSystem, f.notifier.events[0].ActorRef)
	assert.NotEmpty(t, f.notifier.events[0].EventID)
}

func TestOperator_Transitions(t *testing.T) {
	f := newEngine(t, config.AlertConfig{DefaultSnooze: 30 * time.Minute})
	ctx := context.Background()
	require.NoError(t, f.uc.Evaluate(ctx, level(0, 0, 10, 0)))
	id := f.get(t, model.AlertOutOfStock).ID

	a, err := f.uc.Acknowledge(ctx, id, "clerk")
	require.NoError(t, err)
	assert.Equal(t, model.AlertAcknowledged, a.Status)
	require.NotNil(t, a.AcknowledgedBy)
	assert.Equal(t, "clerk", *a.AcknowledgedBy)

	a, err = f.uc.Snooze(ctx, id, time.Time{}, "clerk")
	require.NoError(t, err)
	assert.Equal(t, model.AlertSnoozed, a.Status)
	assert.Equal(t, f.now.Add(30*time.Minute), *a.SnoozedUntil)

	_, err = f.uc.Snooze(ctx, id, f.now.Add(-time.Minute), "clerk")
	assert.ErrorIs(t, err, alert.ErrInvalidArgument)

	a, err = f.uc.Resolve(ctx, id, "supplier delivered", "manager")
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, a.Status)
	assert.Equal(t, "supplier delivered", a.ResolutionNotes)
	assert.Nil(t, a.SnoozedUntil)

	_, err = f.uc.Acknowledge(ctx, id, "clerk")
	assert.ErrorIs(t, err, alert.ErrAlertClosed)
	_, err = f.uc.Cancel(ctx, id, "clerk")
	assert.ErrorIs(t, err, alert.ErrAlertClosed)

	_, err = f.uc.Acknowledge(ctx, "missing", "clerk")
	assert.ErrorIs(t, err, alert.ErrNotFound)
	_, err = f.uc.Acknowledge(ctx, id, "")
	assert.ErrorIs(t, err, alert.ErrInvalidArgument)

	assert.Equal(t, []string{
		dto.EventCreated, dto.EventAcknowledged, dto.EventSnoozed, dto.EventResolved,
	}, f.notifier.types())
}

func TestSummary(t *testing.T) {
	f := newEngine(t, config.AlertConfig{})
	ctx := context.Background()
	require.NoError(t, f.uc.Evaluate(ctx, level(0, 0, 10, 0)))
	require.NoError(t, f.uc.Evaluate(ctx, &model.StockLevel{ItemID: "sku-2", LocationID: "store-1", OnHand: 200, Available: 200, MaximumStock: 100}))
	require.NoError(t, f.uc.Evaluate(ctx, &model.StockLevel{ItemID: "sku-2", LocationID: "store-1", OnHand: 50, Available: 50, MaximumStock: 100}))

	s, err := f.uc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.ByStatus["active"])
	assert.Equal(t, 1, s.ByStatus["resolved"])
	assert.Equal(t, map[string]int{"out_of_stock": 1}, s.OpenByType)
}

// staleRepo loses the first update to a concurrent writer.
type staleRepo struct {
	*repository.MemoryRepository
	lost bool
}

func (r *staleRepo) Update(ctx context.Context, a *model.StockAlert) error {
	if !r.lost {
		r.lost = true
		return alert.ErrAlertConflict
	}
	return r.MemoryRepository.Update(ctx, a)
}

func TestEvaluate_RetriesOnConflict(t *testing.T) {
	mem := repository.NewMemoryRepository()
	repo := &staleRepo{MemoryRepository: mem, lost: true}
	uc := NewAlertUseCase(repo, nil, config.AlertConfig{}, logger.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, uc.Evaluate(ctx, level(5, 0, 10, 0)))
	repo.lost = false
	require.NoError(t, uc.Evaluate(ctx, level(50, 0, 10, 0)))

	a, err := mem.GetByKey(ctx, "sku-1", "store-1", model.AlertLowStock)
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, a.Status)
	assert.Equal(t, int64(1), a.Version)
}

func levelAt(version, onHand, reorderPoint int64) *model.StockLevel {
	l := level(onHand, 0, reorderPoint, 0)
	l.Version = version
	return l
}

func TestEvaluate_IgnoresOlderLevelVersion(t *testing.T) {
	f := newEngine(t, config.AlertConfig{})
	ctx := context.Background()

	require.NoError(t, f.uc.Evaluate(ctx, levelAt(3, 8, 10)))
	a := f.get(t, model.AlertLowStock)
	assert.Equal(t, int64(8), a.CurrentValue)
	assert.Equal(t, int64(3), a.LevelVersion)

	// a late evaluation of an earlier level changes nothing
	require.NoError(t, f.uc.Evaluate(ctx, levelAt(2, 9, 10)))
	a = f.get(t, model.AlertLowStock)
	assert.Equal(t, int64(8), a.CurrentValue)
	assert.Equal(t, int64(3), a.LevelVersion)

	require.NoError(t, f.uc.Evaluate(ctx, levelAt(4, 14, 10)))
	a = f.get(t, model.AlertLowStock)
	assert.Equal(t, model.AlertResolved, a.Status)
	assert.Equal(t, int64(4), a.LevelVersion)

	// nor can it reopen what a newer level resolved
	require.NoError(t, f.uc.Evaluate(ctx, levelAt(2, 9, 10)))
	assert.Equal(t, model.AlertResolved, f.get(t, model.AlertLowStock).Status)
}

// levelSequence serves stored levels in order, repeating the last one.
type levelSequence struct {
	mu     sync.Mutex
	levels []*model.StockLevel
	reads  int
}

func (s *levelSequence) GetLevel(ctx context.Context, itemID, locationID string) (*model.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	if i >= len(s.levels) {
		i = len(s.levels) - 1
	}
	s.reads++
	l := *s.levels[i]
	return &l, nil
}

func TestEvaluate_ReloadsUntilLevelIsStable(t *testing.T) {
	levels := &levelSequence{levels: []*model.StockLevel{
		levelAt(2, 9, 10),
		levelAt(3, 14, 10),
	}}
	repo := repository.NewMemoryRepository()
	uc := NewAlertUseCase(repo, nil, config.AlertConfig{}, logger.NewNopLogger(), WithLevelReader(levels))
	ctx := context.Background()

	// the level moved on while the first pass was writing
	require.NoError(t, uc.Evaluate(ctx, levelAt(2, 9, 10)))

	a, err := repo.GetByKey(ctx, "sku-1", "store-1", model.AlertLowStock)
	require.NoError(t, err)
	assert.Equal(t, model.AlertResolved, a.Status)
	assert.Equal(t, int64(3), a.LevelVersion)
	assert.Equal(t, 3, levels.reads)
}

func TestEvaluate_UsesStoredLevelOverStaleSnapshot(t *testing.T) {
	levels := &levelSequence{levels: []*model.StockLevel{levelAt(3, 14, 10)}}
	repo := repository.NewMemoryRepository()
	uc := NewAlertUseCase(repo, nil, config.AlertConfig{}, logger.NewNopLogger(), WithLevelReader(levels))
	ctx := context.Background()

	require.NoError(t, uc.Evaluate(ctx, levelAt(2, 9, 10)))

	_, err := repo.GetByKey(ctx, "sku-1", "store-1", model.AlertLowStock)
	assert.ErrorIs(t, err, alert.ErrNotFound)
}
