package models

// All lists every persisted model in dependency order, for AutoMigrate in tests.
func All() []any {
	return []any{
		&Product{},
		&InventoryHistory{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&PaymentEvent{},
		&OutboxEvent{},
	}
}
