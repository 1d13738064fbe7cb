package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/alert"
	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/database"
	"github.com/jmoiron/sqlx"
)

type SQLRepository struct {
	DB *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, alert.ErrRepositoryUnavailable, err)
}

func (r *SQLRepository) get(ctx context.Context, op, query string, args ...interface{}) (*model.StockAlert, error) {
	var a model.StockAlert
	if err := r.DB.GetContext(ctx, &a, r.DB.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, alert.ErrNotFound
		}
		return nil, unavailable(op, err)
	}
	return &a, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*model.StockAlert, error) {
	return r.get(ctx, "get alert", `SELECT * FROM stock_alerts WHERE id = ?`, id)
}

func (r *SQLRepository) GetByKey(ctx context.Context, itemID, locationID string, alertType model.AlertType) (*model.StockAlert, error) {
	return r.get(ctx, "get alert by key",
		`SELECT * FROM stock_alerts WHERE item_id = ? AND location_id = ? AND alert_type = ?`,
		itemID, locationID, alertType,
	)
}

func (r *SQLRepository) Create(ctx context.Context, a *model.StockAlert) error {
	query := `
        INSERT INTO stock_alerts (
            id, item_id, location_id, alert_type, threshold_value, current_value,
            priority, status, snoozed_until, resolution_notes, acknowledged_by,
            level_version, version, created_at, updated_at, resolved_at
        )
        VALUES (
            :id, :item_id, :location_id, :alert_type, :threshold_value, :current_value,
            :priority, :status, :snoozed_until, :resolution_notes, :acknowledged_by,
            :level_version, :version, :created_at, :updated_at, :resolved_at
        )
    `
	if _, err := r.DB.NamedExecContext(ctx, query, a); err != nil {
		if database.IsUniqueViolation(err) {
			return alert.ErrAlertExists
		}
		return unavailable("create alert", err)
	}
	return nil
}

func (r *SQLRepository) Update(ctx context.Context, a *model.StockAlert) error {
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(`
        UPDATE stock_alerts
        SET threshold_value = ?, current_value = ?, priority = ?, status = ?,
            snoozed_until = ?, resolution_notes = ?, acknowledged_by = ?,
            level_version = ?, updated_at = ?, resolved_at = ?, version = version + 1
        WHERE id = ? AND version = ?`),
		a.ThresholdValue, a.CurrentValue, a.Priority, a.Status,
		a.SnoozedUntil, a.ResolutionNotes, a.AcknowledgedBy,
		a.LevelVersion, a.UpdatedAt, a.ResolvedAt, a.ID, a.Version,
	)
	if err != nil {
		return unavailable("update alert", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return alert.ErrAlertConflict
	}
	a.Version++
	return nil
}

func (r *SQLRepository) List(ctx context.Context, f *dto.AlertFilters) ([]model.StockAlert, int, error) {
	w := database.NewWhere()
	w.Eq("item_id", f.ItemID)
	w.Eq("location_id", f.LocationID)
	w.Eq("alert_type", string(f.AlertType))
	w.Eq("status", string(f.Status))
	w.Eq("priority", string(f.Priority))
	w.Between("created_at", f.StartDate, f.EndDate)

	var items []model.StockAlert
	count, err := database.List(ctx, r.DB, &items, "stock_alerts", w, "created_at DESC", f.Page, f.PageSize)
	if err != nil {
		return nil, 0, unavailable("list alerts", err)
	}
	return items, count, nil
}

func (r *SQLRepository) Summary(ctx context.Context) (*dto.Summary, error) {
	var rows []struct {
		AlertType string `db:"alert_type"`
		Status    string `db:"status"`
		Count     int    `db:"count"`
	}
	err := r.DB.SelectContext(ctx, &rows, `
        SELECT alert_type, status, count(*) AS count
        FROM stock_alerts
        GROUP BY alert_type, status`)
	if err != nil {
		return nil, unavailable("alert summary", err)
	}

	summary := dto.NewSummary()
	for _, row := range rows {
		summary.Add(model.AlertType(row.AlertType), model.AlertStatus(row.Status), row.Count)
	}
	return summary, nil
}
