package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/database"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
	"github.com/jmoiron/sqlx"
)

// SQLRepository works against both Postgres and MySQL; every positional query
// goes through Rebind and the rest use named parameters.
type SQLRepository struct {
	DB *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, stock.ErrRepositoryUnavailable, err)
}

func (r *SQLRepository) GetLevel(ctx context.Context, itemID, locationID string) (*model.StockLevel, error) {
	var level model.StockLevel
	query := r.DB.Rebind(`SELECT * FROM stock_levels WHERE item_id = ? AND location_id = ?`)

	err := r.DB.GetContext(ctx, &level, query, itemID, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrNotFound
		}
		return nil, unavailable("get level", err)
	}
	return &level, nil
}

func (r *SQLRepository) CreateLevel(ctx context.Context, level *model.StockLevel) error {
	// available is a generated column
	query := `
        INSERT INTO stock_levels (
            id, item_id, location_id, on_hand, reserved,
            reorder_point, maximum_stock, version, created_at, updated_at
        )
        VALUES (
            :id, :item_id, :location_id, :on_hand, :reserved,
            :reorder_point, :maximum_stock, :version, :created_at, :updated_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, level)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return stock.ErrLevelExists
		}
		return unavailable("create level", err)
	}
	level.Normalize()
	return nil
}

func (r *SQLRepository) ListLevels(ctx context.Context, f *dto.LevelFilters) ([]model.StockLevel, int, error) {
	w := database.NewWhere()
	w.Eq("item_id", f.ItemID)
	w.Eq("location_id", f.LocationID)
	if f.LowStock {
		w.Raw("available <= reorder_point AND reorder_point > 0")
	}

	var items []model.StockLevel
	count, err := database.List(ctx, r.DB, &items, "stock_levels", w, "updated_at DESC", f.Page, f.PageSize)
	if err != nil {
		return nil, 0, unavailable("list levels", err)
	}
	return items, count, nil
}

func (r *SQLRepository) CompareAndSwap(ctx context.Context, level *model.StockLevel, expectedVersion int64, change *stock.ReservationChange) error {
	if err := level.Validate(); err != nil {
		return err
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable("begin swap", err)
	}
	defer tx.Rollback()

	// 1. Claim the reservation first so two transitions of the same
	// reservation serialize on its row.
	if change != nil && change.Transition != nil {
		t := change.Transition
		res, err := tx.ExecContext(ctx, r.DB.Rebind(`
            UPDATE stock_reservations
            SET status = ?, reason = ?, resolved_at = ?
            WHERE id = ? AND status = ?`),
			t.To, t.Reason, t.At, t.ReservationID, model.ReservationActive,
		)
		if err != nil {
			return unavailable("transition reservation", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return stock.ErrReservationNotActive
		}
	}

	// 2. Versioned write of the level
	res, err := tx.ExecContext(ctx, r.DB.Rebind(`
        UPDATE stock_levels
        SET on_hand = ?, reserved = ?, reorder_point = ?, maximum_stock = ?,
            version = version + 1, updated_at = ?
        WHERE item_id = ? AND location_id = ? AND version = ?`),
		level.OnHand, level.Reserved, level.ReorderPoint, level.MaximumStock,
		level.UpdatedAt, level.ItemID, level.LocationID, expectedVersion,
	)
	if err != nil {
		return unavailable("swap level", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stock.ErrVersionConflict
	}

	// 3. New reservation rides along with the stock it holds
	if change != nil && change.Create != nil {
		_, err = tx.NamedExecContext(ctx, `
            INSERT INTO stock_reservations (
                id, item_id, location_id, quantity, holder_ref,
                status, reason, created_at, expires_at, resolved_at
            )
            VALUES (
                :id, :item_id, :location_id, :quantity, :holder_ref,
                :status, :reason, :created_at, :expires_at, :resolved_at
            )`, change.Create)
		if err != nil {
			return unavailable("insert reservation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit swap", err)
	}

	level.Version = expectedVersion + 1
	level.Normalize()
	return nil
}

func (r *SQLRepository) AppendMovement(ctx context.Context, m *model.StockMovement) error {
	query := `
        INSERT INTO stock_movements (
            id, item_id, location_id, reservation_id, movement_type,
            quantity_delta, quantity_before, quantity_after, reserved_delta,
            sequence, reason, actor_ref, occurred_at
        )
        VALUES (
            :id, :item_id, :location_id, :reservation_id, :movement_type,
            :quantity_delta, :quantity_before, :quantity_after, :reserved_delta,
            :sequence, :reason, :actor_ref, :occurred_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, m)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return stock.ErrDuplicateMovement
		}
		return unavailable("append movement", err)
	}
	return nil
}

func (r *SQLRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	w := database.NewWhere()
	w.Eq("item_id", f.ItemID)
	w.Eq("location_id", f.LocationID)
	w.Eq("movement_type", string(f.MovementType))
	w.Eq("reservation_id", f.ReservationID)
	w.Between("occurred_at", f.StartDate, f.EndDate)

	order := "occurred_at DESC, sequence DESC"
	if f.Ascending {
		order = "sequence ASC, occurred_at ASC"
	}

	var items []model.StockMovement
	count, err := database.List(ctx, r.DB, &items, "stock_movements", w, order, f.Page, f.PageSize)
	if err != nil {
		return nil, 0, unavailable("list movements", err)
	}
	return items, count, nil
}

func (r *SQLRepository) GetReservation(ctx context.Context, id string) (*model.StockReservation, error) {
	var res model.StockReservation
	err := r.DB.GetContext(ctx, &res, r.DB.Rebind(`SELECT * FROM stock_reservations WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrNotFound
		}
		return nil, unavailable("get reservation", err)
	}
	return &res, nil
}

func (r *SQLRepository) ExtendReservation(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(`
        UPDATE stock_reservations SET expires_at = ?
        WHERE id = ? AND status = ?`),
		expiresAt, id, model.ReservationActive,
	)
	if err != nil {
		return unavailable("extend reservation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return stock.ErrReservationNotActive
	}
	return nil
}

func (r *SQLRepository) QueryReservations(ctx context.Context, f *dto.ReservationFilters) ([]model.StockReservation, int, error) {
	w := database.NewWhere()
	w.Eq("item_id", f.ItemID)
	w.Eq("location_id", f.LocationID)
	w.Eq("holder_ref", f.HolderRef)
	w.Eq("status", string(f.Status))
	if f.ExpiresBefore != nil {
		w.Cond("expires_at < :expires_before", "expires_before", *f.ExpiresBefore)
	}
	w.Between("created_at", f.StartDate, f.EndDate)

	var items []model.StockReservation
	count, err := database.List(ctx, r.DB, &items, "stock_reservations", w, "created_at DESC", f.Page, f.PageSize)
	if err != nil {
		return nil, 0, unavailable("query reservations", err)
	}
	return items, count, nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	if err := r.DB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
