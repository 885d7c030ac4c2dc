package models

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Shop{},
		&Product{},
		&Package{},
		&Order{},
		&OrderDetail{},
		&Transaction{},
		&Wallet{},
		&Report{},
		&OutboxEvent{},
	}
}
