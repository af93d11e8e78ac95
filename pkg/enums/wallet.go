package enums

// WalletTransactionType marks the direction of a wallet balance movement.
type WalletTransactionType string

const (
	WalletTransactionDebit  WalletTransactionType = "debit"
	WalletTransactionCredit WalletTransactionType = "credit"
)
