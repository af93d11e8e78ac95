package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
)

// Wallet holds prepaid customer credit.
type Wallet struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID uuid.UUID       `gorm:"column:customer_id;type:uuid;not null;uniqueIndex"`
	Balance    decimal.Decimal `gorm:"column:balance;type:numeric(12,3);not null;default:0"`
	Currency   string          `gorm:"column:currency;type:text;not null;default:'BHD'"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// WalletTransaction is an append-only movement on a wallet balance.
type WalletTransaction struct {
	ID           int64                       `gorm:"column:id;primaryKey;autoIncrement"`
	WalletID     uuid.UUID                   `gorm:"column:wallet_id;type:uuid;not null;index"`
	OrderID      uuid.UUID                   `gorm:"column:order_id;type:uuid;not null"`
	PaymentID    uuid.UUID                   `gorm:"column:payment_id;type:uuid;not null"`
	Type         enums.WalletTransactionType `gorm:"column:type;type:text;not null"`
	Amount       decimal.Decimal             `gorm:"column:amount;type:numeric(12,3);not null"`
	BalanceAfter decimal.Decimal             `gorm:"column:balance_after;type:numeric(12,3);not null"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }
