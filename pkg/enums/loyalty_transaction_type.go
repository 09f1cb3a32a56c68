package enums

import "fmt"

// LoyaltyTransactionType classifies a loyalty ledger row.
type LoyaltyTransactionType string

const (
	LoyaltyTransactionTypeOrderEarn   LoyaltyTransactionType = "order_earn"
	LoyaltyTransactionTypeRedeem      LoyaltyTransactionType = "redeem"
	LoyaltyTransactionTypeAdminAdjust LoyaltyTransactionType = "admin_adjust"
)

var validLoyaltyTransactionTypes = []LoyaltyTransactionType{
	LoyaltyTransactionTypeOrderEarn,
	LoyaltyTransactionTypeRedeem,
	LoyaltyTransactionTypeAdminAdjust,
}

// IsValid reports whether the value matches the canonical ledger row enum.
func (t LoyaltyTransactionType) IsValid() bool {
	for _, candidate := range validLoyaltyTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLoyaltyTransactionType converts raw input into LoyaltyTransactionType.
func ParseLoyaltyTransactionType(value string) (LoyaltyTransactionType, error) {
	for _, candidate := range validLoyaltyTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty transaction type %q", value)
}
