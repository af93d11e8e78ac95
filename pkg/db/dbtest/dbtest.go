// Package dbtest opens throwaway SQLite databases with the full schema for
// package tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/laundrytrack-backend/pkg/db"
	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// Open returns a client over a file-backed SQLite database in t.TempDir().
// Transactions begin IMMEDIATE so concurrent writers queue on the database
// lock instead of interleaving; SQLite has no row locks or isolation levels
// of its own.
func Open(t *testing.T) *db.Client {
	t.Helper()

	path := filepath.Join(t.TempDir(), "laundrytrack.db")
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=10000&_journal_mode=WAL", path)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	client := db.Wrap(conn, db.WithIsolation(sql.LevelDefault))
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

// OrderOption customizes a seeded order.
type OrderOption func(*models.Order)

// WithInvoiceTotal sets the computed invoice total.
func WithInvoiceTotal(amount string) OrderOption {
	return func(o *models.Order) {
		o.InvoiceTotal = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
}

// WithMinimumFee marks the order as subject to the given minimum fee.
func WithMinimumFee(amount string) OrderOption {
	return func(o *models.Order) {
		o.MinimumFeeApplied = true
		o.MinimumOrderFee = decimal.RequireFromString(amount)
	}
}

// WithStatus seeds the order at the given lifecycle status.
func WithStatus(status enums.OrderStatus) OrderOption {
	return func(o *models.Order) {
		o.Status = status
	}
}

// WithPaymentStatus seeds the order at the given payment status.
func WithPaymentStatus(status enums.OrderPaymentStatus) OrderOption {
	return func(o *models.Order) {
		o.PaymentStatus = status
	}
}

// SeedOrder inserts an order in ORDER_PLACED/PENDING unless options say otherwise.
func SeedOrder(t *testing.T, client *db.Client, opts ...OrderOption) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "LT-" + uuid.NewString()[:8],
		CustomerID:    uuid.New(),
		Status:        enums.OrderStatusPlaced,
		PaymentStatus: enums.OrderPaymentStatusPending,
		Currency:      "BHD",
	}
	for _, opt := range opts {
		opt(order)
	}
	if err := client.DB().WithContext(context.Background()).Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

// ReloadOrder reads the order back from storage.
func ReloadOrder(t *testing.T, client *db.Client, id uuid.UUID) *models.Order {
	t.Helper()

	var order models.Order
	if err := client.DB().First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return &order
}

// SeedWallet creates a wallet for the customer holding balance.
func SeedWallet(t *testing.T, client *db.Client, customerID uuid.UUID, balance string) *models.Wallet {
	t.Helper()

	wallet := &models.Wallet{
		CustomerID: customerID,
		Balance:    decimal.RequireFromString(balance),
		Currency:   "BHD",
	}
	if err := client.DB().Create(wallet).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return wallet
}

// SeedPaymentRecord writes a charge straight to storage without touching the
// order, leaving its payment status stale until something reconciles it.
func SeedPaymentRecord(t *testing.T, client *db.Client, orderID uuid.UUID, amount string, status enums.PaymentStatus) *models.PaymentRecord {
	t.Helper()

	record := &models.PaymentRecord{
		OrderID:       orderID,
		Kind:          enums.PaymentKindCharge,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "BHD",
		PaymentMethod: enums.PaymentMethodCash,
		PaymentStatus: status,
	}
	if err := client.DB().Create(record).Error; err != nil {
		t.Fatalf("seed payment record: %v", err)
	}
	return record
}
