package models

// All lists every model owned by the schema. Tests feed it to AutoMigrate; the
// production schema lives in the goose migrations.
func All() []any {
	return []any{
		&Order{},
		&PaymentRecord{},
		&OrderHistoryEntry{},
		&OrderUpdate{},
		&DriverAssignment{},
		&OrderProcessing{},
		&IssueReport{},
		&Wallet{},
		&WalletTransaction{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
