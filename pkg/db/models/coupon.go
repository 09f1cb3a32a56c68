package models

import (
	"time"

	"github.com/candemirel/vitrin-backend/pkg/enums"
)

// Coupon is a promotional code. Deletion is a soft-disable so that usage
// history stays referentially intact.
type Coupon struct {
	ID    int64            `gorm:"column:id;primaryKey;autoIncrement"`
	Code  string           `gorm:"column:code;not null;uniqueIndex"`
	Type  enums.CouponType `gorm:"column:type;type:text;not null"`
	Value int              `gorm:"column:value;not null"`

	MinOrderAmount    *int `gorm:"column:min_order_amount"`
	MaxDiscountAmount *int `gorm:"column:max_discount_amount"`
	UsageLimit        *int `gorm:"column:usage_limit"`
	PerUserLimit      *int `gorm:"column:per_user_limit"`

	// UserEmail scopes single-use redemption coupons to one user.
	UserEmail *string `gorm:"column:user_email;index"`

	StartsAt  *time.Time `gorm:"column:starts_at"`
	ExpiresAt *time.Time `gorm:"column:expires_at"`
	IsActive  bool       `gorm:"column:is_active;not null;default:true"`

	Usages []CouponUsage `gorm:"foreignKey:CouponID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// CouponUsage records one applied coupon per order; append-only.
type CouponUsage struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CouponID       int64     `gorm:"column:coupon_id;not null;index"`
	OrderID        int64     `gorm:"column:order_id;not null;index"`
	UserEmail      string    `gorm:"column:user_email;not null;index"`
	DiscountAmount int       `gorm:"column:discount_amount;not null"`
	UsedAt         time.Time `gorm:"column:used_at;autoCreateTime"`
}
