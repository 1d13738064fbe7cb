package features

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/alert"
	alertDto "github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	alertRepo "github.com/fekuna/omnipos-stock-service/internal/alert/repository"
	alertUC "github.com/fekuna/omnipos-stock-service/internal/alert/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
	stockRepo "github.com/fekuna/omnipos-stock-service/internal/stock/repository"
	stockUC "github.com/fekuna/omnipos-stock-service/internal/stock/usecase"
)

const location = "store-1"

type ledgerTestContext struct {
	mu          sync.Mutex
	now         time.Time
	ledger      stock.UseCase
	alerts      alert.UseCase
	item        string
	reservation *model.StockReservation
	err         error
	succeeded   int
	rejected    int
}

func (c *ledgerTestContext) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ledgerTestContext) reset() {
	c.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	nop := logger.NewNopLogger()

	levels := stockRepo.NewMemoryRepository()
	c.alerts = alertUC.NewAlertUseCase(alertRepo.NewMemoryRepository(), nil, config.AlertConfig{}, nop,
		alertUC.WithClock(c.clock), alertUC.WithLevelReader(levels))

	cfg := stockUC.DefaultConfig()
	cfg.Now = c.clock
	cfg.MaxRetries = 20
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 5 * time.Millisecond
	c.ledger = stockUC.NewStockUseCase(levels, c.alerts, nil, cfg, nop)

	c.item = ""
	c.reservation = nil
	c.err = nil
	c.succeeded = 0
	c.rejected = 0
}

func (c *ledgerTestContext) aStockLevel(itemID, locationID string, onHand, reorderPoint int) error {
	_, err := c.ledger.CreateLevel(context.Background(), &dto.CreateLevelInput{
		ItemID:       itemID,
		LocationID:   locationID,
		OnHand:       int64(onHand),
		ReorderPoint: int64(reorderPoint),
		ActorRef:     "receiving",
	})
	if c.item == "" {
		c.item = itemID
	}
	return err
}

func (c *ledgerTestContext) reserve(itemID string, qty int, ttl time.Duration) error {
	res, err := c.ledger.Reserve(context.Background(), &dto.ReserveInput{
		ItemID:     itemID,
		LocationID: location,
		Quantity:   int64(qty),
		HolderRef:  "cart-1",
		TTL:        ttl,
	})
	if err != nil {
		return err
	}
	c.reservation = res
	return nil
}

func (c *ledgerTestContext) iReserveUnits(qty int) error {
	return c.reserve(c.item, qty, 0)
}

func (c *ledgerTestContext) iReserveUnitsFor(qty, seconds int) error {
	return c.reserve(c.item, qty, time.Duration(seconds)*time.Second)
}

func (c *ledgerTestContext) iReserveUnitsOf(qty int, itemID string) error {
	return c.reserve(itemID, qty, 0)
}

func (c *ledgerTestContext) iCommitTheReservation() error {
	_, err := c.ledger.CommitSale(context.Background(), c.reservation.ID, "payments")
	return err
}

func (c *ledgerTestContext) concurrentReservations(n int, itemID string) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var unexpected error
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.ledger.Reserve(context.Background(), &dto.ReserveInput{
				ItemID: itemID, LocationID: location, Quantity: 1, HolderRef: "cart",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				c.succeeded++
			case errors.Is(err, stock.ErrInsufficientStock):
				c.rejected++
			default:
				unexpected = err
			}
		}()
	}
	close(start)
	wg.Wait()
	return unexpected
}

func (c *ledgerTestContext) reservationsSucceedAndFail(ok, failed int) error {
	if c.succeeded != ok || c.rejected != failed {
		return fmt.Errorf("expected %d successes and %d rejections, got %d and %d", ok, failed, c.succeeded, c.rejected)
	}
	return nil
}

func (c *ledgerTestContext) secondsPass(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Duration(n) * time.Second)
	return nil
}

func (c *ledgerTestContext) theExpirySweepRuns() error {
	_, err := c.ledger.SweepExpired(context.Background(), c.clock())
	return err
}

func (c *ledgerTestContext) theReservationIs(status string) error {
	res, err := c.ledger.GetReservation(context.Background(), c.reservation.ID)
	if err != nil {
		return err
	}
	if string(res.Status) != status {
		return fmt.Errorf("expected reservation %s, got %s", status, res.Status)
	}
	return nil
}

func (c *ledgerTestContext) levelField(name string, pick func(*model.StockLevel) int64) func(int) error {
	return func(want int) error {
		level, err := c.ledger.Query(context.Background(), c.item, location)
		if err != nil {
			return err
		}
		if got := pick(level); got != int64(want) {
			return fmt.Errorf("expected %s %d, got %d", name, want, got)
		}
		return nil
	}
}

func (c *ledgerTestContext) iRemoveOneMoreThanAvailable(reason string) error {
	level, err := c.ledger.Query(context.Background(), c.item, location)
	if err != nil {
		return err
	}
	_, c.err = c.ledger.Adjust(context.Background(), &dto.AdjustInput{
		ItemID:     c.item,
		LocationID: location,
		Delta:      -(level.OnHand - level.Reserved + 1),
		Reason:     reason,
		ActorRef:   "clerk",
	})
	return nil
}

func (c *ledgerTestContext) theAdjustmentIsRejected() error {
	if !errors.Is(c.err, stock.ErrInvalidAdjustment) {
		return fmt.Errorf("expected invalid adjustment, got %v", c.err)
	}
	return nil
}

func (c *ledgerTestContext) iRestockUnitsOf(qty int, itemID string) error {
	_, err := c.ledger.Adjust(context.Background(), &dto.AdjustInput{
		ItemID: itemID, LocationID: location, Delta: int64(qty), Reason: "delivery", ActorRef: "receiving",
	})
	return err
}

func (c *ledgerTestContext) findAlert(alertType, itemID, status string) (*model.StockAlert, error) {
	items, _, err := c.alerts.List(context.Background(), &alertDto.AlertFilters{
		ItemID:    itemID,
		AlertType: model.AlertType(alertType),
	})
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, fmt.Errorf("expected one %s alert, got %d", alertType, len(items))
	}
	if string(items[0].Status) != status {
		return nil, fmt.Errorf("expected %s alert %s, got %s", alertType, status, items[0].Status)
	}
	return &items[0], nil
}

func (c *ledgerTestContext) anAlertWithValue(alertType, itemID, status string, value int) error {
	a, err := c.findAlert(alertType, itemID, status)
	if err != nil {
		return err
	}
	if a.CurrentValue != int64(value) {
		return fmt.Errorf("expected current value %d, got %d", value, a.CurrentValue)
	}
	return nil
}

func (c *ledgerTestContext) anAlert(alertType, itemID, status string) error {
	_, err := c.findAlert(alertType, itemID, status)
	return err
}

func (c *ledgerTestContext) thereAreMovements(n int, movementType string) error {
	_, total, err := c.ledger.ListMovements(context.Background(), &dto.MovementFilters{
		ItemID:       c.item,
		LocationID:   location,
		MovementType: model.MovementType(movementType),
	})
	if err != nil {
		return err
	}
	if total != n {
		return fmt.Errorf("expected %d %s movements, got %d", n, movementType, total)
	}
	return nil
}

func (c *ledgerTestContext) theMovementLogReproducesTheLevel() error {
	report, err := c.ledger.Reconcile(context.Background(), c.item, location)
	if err != nil {
		return err
	}
	if !report.Consistent {
		return fmt.Errorf("replay gave on_hand %d reserved %d, level has %d/%d",
			report.ReplayedOnHand, report.ReplayedReserved, report.OnHand, report.Reserved)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &ledgerTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a stock level for "([^"]*)" at "([^"]*)" with (\d+) on hand and reorder point (\d+)$`, tc.aStockLevel)

	// When steps
	ctx.Step(`^I reserve (\d+) units?$`, tc.iReserveUnits)
	ctx.Step(`^I reserve (\d+) units? for (\d+) seconds?$`, tc.iReserveUnitsFor)
	ctx.Step(`^I reserve (\d+) units? of "([^"]*)"$`, tc.iReserveUnitsOf)
	ctx.Step(`^I commit the reservation$`, tc.iCommitTheReservation)
	ctx.Step(`^(\d+) concurrent reservations of 1 unit are attempted on "([^"]*)"$`, tc.concurrentReservations)
	ctx.Step(`^(\d+) seconds? pass(?:es)?$`, tc.secondsPass)
	ctx.Step(`^the expiry sweep runs$`, tc.theExpirySweepRuns)
	ctx.Step(`^I remove one more unit than is available with reason "([^"]*)"$`, tc.iRemoveOneMoreThanAvailable)
	ctx.Step(`^I restock (\d+) units? of "([^"]*)"$`, tc.iRestockUnitsOf)

	// Then steps
	ctx.Step(`^available is (\d+)$`, tc.levelField("available", func(l *model.StockLevel) int64 { return l.Available }))
	ctx.Step(`^on hand is (\d+)$`, tc.levelField("on hand", func(l *model.StockLevel) int64 { return l.OnHand }))
	ctx.Step(`^reserved is (\d+)$`, tc.levelField("reserved", func(l *model.StockLevel) int64 { return l.Reserved }))
	ctx.Step(`^the reservation is "([^"]*)"$`, tc.theReservationIs)
	ctx.Step(`^(\d+) reservations succeed and (\d+) fails? with insufficient stock$`, tc.reservationsSucceedAndFail)
	ctx.Step(`^the adjustment is rejected as invalid$`, tc.theAdjustmentIsRejected)
	ctx.Step(`^a "([^"]*)" alert for "([^"]*)" is "([^"]*)" with current value (\d+)$`, tc.anAlertWithValue)
	ctx.Step(`^a "([^"]*)" alert for "([^"]*)" is "([^"]*)"$`, tc.anAlert)
	ctx.Step(`^there (?:is|are) (\d+) "([^"]*)" movements?$`, tc.thereAreMovements)
	ctx.Step(`^the movement log reproduces the stock level$`, tc.theMovementLogReproducesTheLevel)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"ledger.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
