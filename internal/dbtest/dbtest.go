// Package dbtest opens in-memory sqlite databases carrying the application schema.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE owners (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		contact_person TEXT NOT NULL DEFAULT '',
		default_quantity NUMERIC NOT NULL DEFAULT 1,
		skip_days TEXT NOT NULL DEFAULT '[0]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_owners_email ON owners (email)`,
	`CREATE TABLE price_settings (
		id BIGINT PRIMARY KEY,
		effective_date DATETIME NOT NULL,
		price_per_liter NUMERIC NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE orders (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		order_date DATETIME NOT NULL,
		quantity NUMERIC NOT NULL,
		status TEXT NOT NULL,
		price_per_unit NUMERIC NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_orders_owner_date ON orders (owner_id, order_date)`,
	`CREATE TABLE bills (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		billing_month TEXT NOT NULL,
		total_liters NUMERIC NOT NULL DEFAULT 0,
		total_amount NUMERIC NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		due_date DATETIME NOT NULL,
		payment_link TEXT NOT NULL DEFAULT '',
		link_source TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_bills_owner_month ON bills (owner_id, billing_month)`,
	`CREATE TABLE payment_records (
		id BIGINT PRIMARY KEY,
		bill_id BIGINT NOT NULL,
		owner_id BIGINT NOT NULL,
		amount NUMERIC NOT NULL,
		transaction_id TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		payment_date DATETIME NOT NULL,
		gateway_payload TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payment_records_transaction ON payment_records (transaction_id)`,
	`CREATE TABLE notification_logs (
		id BIGINT PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		channel TEXT NOT NULL,
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		sent_at DATETIME NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id BIGINT PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		request_id TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a private in-memory database with every application table.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:milkbill_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Keep the shared-cache database alive for the whole test.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// Node returns a snowflake generator for tests.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// Count returns the number of rows in table matching where.
func Count(t testing.TB, db *gorm.DB, table, where string, args ...any) int64 {
	t.Helper()
	var count int64
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	if err := db.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
