package models

import (
	"time"

	"github.com/candemirel/vitrin-backend/pkg/enums"
)

// Order is one checkout attempt. It is created in (pending, pending) and is
// mutated after creation only by the payment webhook or the stale-order
// reclaimer; rows are never deleted.
type Order struct {
	ID      int64  `gorm:"column:id;primaryKey;autoIncrement"`
	OrderNo string `gorm:"column:order_no;size:11;not null;uniqueIndex"`

	UserEmail string `gorm:"column:user_email;not null;index"`

	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	TotalAmount int `gorm:"column:total_amount;not null"`

	PaytrMerchantOid  string  `gorm:"column:paytr_merchant_oid;not null;uniqueIndex"`
	PaytrTotalAmount  *int    `gorm:"column:paytr_total_amount"`
	PaytrPaymentType  *string `gorm:"column:paytr_payment_type"`
	FailedReasonCode  *string `gorm:"column:failed_reason_code"`
	FailedReasonMsg   *string `gorm:"column:failed_reason_msg"`
	CartToken         *string `gorm:"column:cart_token;index"`
	ExperimentVariant *string `gorm:"column:experiment_variant"`

	PaymentCompletedAt *time.Time `gorm:"column:payment_completed_at"`

	Items        []OrderItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CouponUsages []CouponUsage `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
