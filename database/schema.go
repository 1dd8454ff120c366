package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema crée les tables du moteur. Chaque instruction est idempotente.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS cm_kits (
		kit_id     TEXT PRIMARY KEY,
		kit_name   TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cm_erp_products (
		product_id TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		spec       TEXT,
		bal_qty    INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS cm_raw_order_lines (
		id                  BIGSERIAL PRIMARY KEY,
		site_order_no       TEXT NOT NULL,
		platform_name       TEXT,
		product_name        TEXT,
		option_text         TEXT,
		site_product_code   TEXT,
		master_product_code TEXT,
		qty                 INTEGER,
		paid_at             TIMESTAMPTZ,
		upload_date         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		matched_kit_id      TEXT,
		process_status      TEXT CHECK (process_status IN ('UNMATCHED', 'MATCHED', 'GIFT_APPLIED', 'DONE'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_order_lines_pending
		ON cm_raw_order_lines (id) WHERE process_status IS NULL OR process_status = 'UNMATCHED'`,
	`CREATE INDEX IF NOT EXISTS idx_raw_order_lines_status ON cm_raw_order_lines (process_status)`,
	`CREATE TABLE IF NOT EXISTS cm_raw_mapping_rules (
		rule_id        BIGSERIAL PRIMARY KEY,
		key_kind       TEXT NOT NULL DEFAULT 'IDENTIFIER',
		raw_identifier TEXT NOT NULL,
		canonical_key  TEXT NOT NULL,
		kit_id         TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (key_kind, raw_identifier)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mapping_rules_canonical ON cm_raw_mapping_rules (key_kind, canonical_key)`,
	`CREATE TABLE IF NOT EXISTS cm_kit_bom_items (
		id         BIGSERIAL PRIMARY KEY,
		kit_id     TEXT NOT NULL,
		product_id TEXT NOT NULL,
		multiplier INTEGER NOT NULL CHECK (multiplier > 0),
		UNIQUE (kit_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS cm_promo_rules (
		rule_id        BIGSERIAL PRIMARY KEY,
		promo_group_id UUID NOT NULL,
		promo_name     TEXT NOT NULL,
		promo_type     TEXT NOT NULL CHECK (promo_type IN ('PRICE_ONLY', 'Q_BASED', 'ALL_GIFT')),
		target_kit_ids TEXT[] NOT NULL,
		condition_qty  INTEGER NOT NULL DEFAULT 1,
		gift_qty       INTEGER NOT NULL DEFAULT 0,
		gift_kit_id    TEXT,
		start_date     DATE NOT NULL,
		end_date       DATE NOT NULL,
		platform_name  TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_date >= start_date)
	)`,
	`CREATE TABLE IF NOT EXISTS cm_order_gifts (
		id            BIGSERIAL PRIMARY KEY,
		order_line_id BIGINT NOT NULL REFERENCES cm_raw_order_lines (id) ON DELETE CASCADE,
		rule_id       BIGINT NOT NULL REFERENCES cm_promo_rules (rule_id) ON DELETE CASCADE,
		gift_kit_id   TEXT NOT NULL,
		gift_qty      INTEGER NOT NULL CHECK (gift_qty > 0),
		is_confirmed  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (order_line_id, rule_id)
	)`,
}

// Migrate applique le schéma dans une transaction
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
