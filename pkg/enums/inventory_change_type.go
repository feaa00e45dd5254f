package enums

import "fmt"

// InventoryChangeType classifies a ledger row.
type InventoryChangeType string

const (
	InventoryChangeTypeRestock    InventoryChangeType = "restock"
	InventoryChangeTypeSale       InventoryChangeType = "sale"
	InventoryChangeTypeAdjustment InventoryChangeType = "adjustment"
	InventoryChangeTypeExpired    InventoryChangeType = "expired"
	InventoryChangeTypeDamaged    InventoryChangeType = "damaged"
)

var validInventoryChangeTypes = []InventoryChangeType{
	InventoryChangeTypeRestock,
	InventoryChangeTypeSale,
	InventoryChangeTypeAdjustment,
	InventoryChangeTypeExpired,
	InventoryChangeTypeDamaged,
}

// String implements fmt.Stringer.
func (v InventoryChangeType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known InventoryChangeType.
func (v InventoryChangeType) IsValid() bool {
	for _, candidate := range validInventoryChangeTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseInventoryChangeType converts raw input into a InventoryChangeType.
func ParseInventoryChangeType(value string) (InventoryChangeType, error) {
	for _, candidate := range validInventoryChangeTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory change type %q", value)
}
