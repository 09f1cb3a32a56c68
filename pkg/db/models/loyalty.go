package models

import (
	"time"

	"github.com/candemirel/vitrin-backend/pkg/enums"
)

// LoyaltyAccount is the per-user balance projection over the transaction
// ledger. PointsBalance = TotalEarned - TotalRedeemed holds on every write.
type LoyaltyAccount struct {
	ID            int64             `gorm:"column:id;primaryKey;autoIncrement"`
	UserEmail     string            `gorm:"column:user_email;not null;uniqueIndex"`
	PointsBalance int               `gorm:"column:points_balance;not null;default:0"`
	TotalEarned   int               `gorm:"column:total_earned;not null;default:0"`
	TotalRedeemed int               `gorm:"column:total_redeemed;not null;default:0"`
	Tier          enums.LoyaltyTier `gorm:"column:tier;type:text;not null;default:'bronze'"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// LoyaltyTransaction is the append-only ledger row behind the projection.
// Grant idempotency is enforced by scanning for (order_id, order_earn).
type LoyaltyTransaction struct {
	ID           int64                        `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID    int64                        `gorm:"column:account_id;not null;index"`
	PointsChange int                          `gorm:"column:points_change;not null"`
	Type         enums.LoyaltyTransactionType `gorm:"column:type;type:text;not null"`
	OrderID      *int64                       `gorm:"column:order_id;index"`
	CouponID     *int64                       `gorm:"column:coupon_id"`
	Description  string                       `gorm:"column:description;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
