// Package wallet moves prepaid customer credit. Movements always run inside a
// transaction owned by the payment ledger so a wallet charge and its payment
// record commit or roll back together.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	"github.com/angelmondragon/laundrytrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
)

// Service debits and credits customer wallets.
type Service interface {
	Debit(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.WalletTransaction, error)
	Credit(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.WalletTransaction, error)
	Balance(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error)
}

// MovementInput ties a wallet movement to the payment that caused it.
type MovementInput struct {
	CustomerID uuid.UUID
	OrderID    uuid.UUID
	PaymentID  uuid.UUID
	Amount     decimal.Decimal
	Currency   string
}

type service struct {
	repo Repository
}

// NewService wires the wallet service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Debit(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.WalletTransaction, error) {
	if err := validateMovement(tx, input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	wallet, err := repo.LockByCustomer(ctx, input.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer has no wallet")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if wallet.Balance.LessThan(input.Amount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "insufficient wallet balance").
			WithDetails(map[string]any{
				"balance":   wallet.Balance.StringFixed(3),
				"requested": input.Amount.StringFixed(3),
			})
	}

	return s.apply(ctx, repo, wallet, input, enums.WalletTransactionDebit, wallet.Balance.Sub(input.Amount))
}

func (s *service) Credit(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.WalletTransaction, error) {
	if err := validateMovement(tx, input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	wallet, err := repo.LockByCustomer(ctx, input.CustomerID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		wallet = &models.Wallet{
			CustomerID: input.CustomerID,
			Balance:    decimal.Zero,
			Currency:   input.Currency,
		}
		if wallet.Currency == "" {
			wallet.Currency = "BHD"
		}
		if err := repo.Create(ctx, wallet); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
		}
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}

	return s.apply(ctx, repo, wallet, input, enums.WalletTransactionCredit, wallet.Balance.Add(input.Amount))
}

func (s *service) Balance(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.repo.FindByCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find wallet")
	}
	return wallet.Balance, nil
}

func (s *service) apply(
	ctx context.Context,
	repo Repository,
	wallet *models.Wallet,
	input MovementInput,
	kind enums.WalletTransactionType,
	balance decimal.Decimal,
) (*models.WalletTransaction, error) {
	if err := repo.UpdateBalance(ctx, wallet.ID, balance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet balance")
	}
	txn := &models.WalletTransaction{
		WalletID:     wallet.ID,
		OrderID:      input.OrderID,
		PaymentID:    input.PaymentID,
		Type:         kind,
		Amount:       input.Amount,
		BalanceAfter: balance,
	}
	if err := repo.InsertTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert wallet transaction")
	}
	wallet.Balance = balance
	return txn, nil
}

func validateMovement(tx *gorm.DB, input MovementInput) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "wallet movements require a transaction")
	}
	if input.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "wallet amount must be positive")
	}
	return nil
}
