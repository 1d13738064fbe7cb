package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS stock_levels (
		id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(128) NOT NULL,
		location_id VARCHAR(128) NOT NULL,
		on_hand BIGINT NOT NULL DEFAULT 0,
		reserved BIGINT NOT NULL DEFAULT 0,
		available BIGINT GENERATED ALWAYS AS (on_hand - reserved) STORED,
		reorder_point BIGINT NOT NULL DEFAULT 0,
		maximum_stock BIGINT NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_stock_levels_item_location UNIQUE (item_id, location_id),
		CONSTRAINT ck_stock_levels_reserved CHECK (reserved >= 0 AND reserved <= on_hand)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_reservations (
		id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(128) NOT NULL,
		location_id VARCHAR(128) NOT NULL,
		quantity BIGINT NOT NULL CHECK (quantity > 0),
		holder_ref VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_expiry ON stock_reservations (status, expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_holder ON stock_reservations (holder_ref)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_reservations_item ON stock_reservations (item_id, location_id)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(128) NOT NULL,
		location_id VARCHAR(128) NOT NULL,
		reservation_id VARCHAR(64) NULL,
		movement_type VARCHAR(32) NOT NULL,
		quantity_delta BIGINT NOT NULL,
		quantity_before BIGINT NOT NULL,
		quantity_after BIGINT NOT NULL,
		reserved_delta BIGINT NOT NULL DEFAULT 0,
		sequence BIGINT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		actor_ref VARCHAR(255) NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_item ON stock_movements (item_id, location_id, sequence)`,
	`CREATE TABLE IF NOT EXISTS stock_alerts (
		id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(128) NOT NULL,
		location_id VARCHAR(128) NOT NULL,
		alert_type VARCHAR(32) NOT NULL,
		threshold_value BIGINT NOT NULL,
		current_value BIGINT NOT NULL,
		priority VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		snoozed_until TIMESTAMPTZ NULL,
		resolution_notes TEXT NOT NULL DEFAULT '',
		acknowledged_by VARCHAR(255) NULL,
		level_version BIGINT NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ NULL,
		CONSTRAINT uq_stock_alerts_key UNIQUE (item_id, location_id, alert_type)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_alerts_status ON stock_alerts (status, updated_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS stock_levels (
		id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(128) NOT NULL,
		location_id VARCHAR(128) NOT NULL,
		on_hand BIGINT NOT NULL DEFAULT 0,
		reserved BIGINT NOT NULL DEFAULT 0,
		available BIGINT GENERATED ALWAYS AS (on_hand - reserved) STORED,
		reorder_point BIGINT NOT NULL DEFAULT 0,
		maximum_stock BIGINT NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_stock_levels_item_location (item_id, location_id),
		CONSTRAINT ck_stock_levels_reserved CHECK (reserved >= 0 AND reserved <= on_hand)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS stock_reservations (
		id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(128) NOT NULL,
		location_id VARCHAR(128) NOT NULL,
		quantity BIGINT NOT NULL,
		holder_ref VARCHAR(255) NOT NULL,
		status VARCHAR(16) NOT NULL,
		reason VARCHAR(1024) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		expires_at DATETIME(6) NOT NULL,
		resolved_at DATETIME(6) NULL,
		KEY idx_stock_reservations_expiry (status, expires_at),
		KEY idx_stock_reservations_holder (holder_ref),
		KEY idx_stock_reservations_item (item_id, location_id),
		CONSTRAINT ck_stock_reservations_quantity CHECK (quantity > 0)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(128) NOT NULL,
		location_id VARCHAR(128) NOT NULL,
		reservation_id VARCHAR(64) NULL,
		movement_type VARCHAR(32) NOT NULL,
		quantity_delta BIGINT NOT NULL,
		quantity_before BIGINT NOT NULL,
		quantity_after BIGINT NOT NULL,
		reserved_delta BIGINT NOT NULL DEFAULT 0,
		sequence BIGINT NOT NULL,
		reason VARCHAR(1024) NOT NULL DEFAULT '',
		actor_ref VARCHAR(255) NOT NULL,
		occurred_at DATETIME(6) NOT NULL,
		KEY idx_stock_movements_item (item_id, location_id, sequence)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS stock_alerts (
		id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(128) NOT NULL,
		location_id VARCHAR(128) NOT NULL,
		alert_type VARCHAR(32) NOT NULL,
		threshold_value BIGINT NOT NULL,
		current_value BIGINT NOT NULL,
		priority VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		snoozed_until DATETIME(6) NULL,
		resolution_notes VARCHAR(2048) NOT NULL DEFAULT '',
		acknowledged_by VARCHAR(255) NULL,
		level_version BIGINT NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		resolved_at DATETIME(6) NULL,
		UNIQUE KEY uq_stock_alerts_key (item_id, location_id, alert_type),
		KEY idx_stock_alerts_status (status, updated_at)
	) ENGINE=InnoDB`,
}

// Migrate creates the ledger tables for the connection's dialect. Every
// statement is idempotent so it runs on each start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	statements := postgresSchema
	if db.DriverName() == DriverMySQL {
		statements = mysqlSchema
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", db.DriverName(), err)
		}
	}
	return nil
}
