package audit

// Typed payloads for audit entries. Each struct is serialized into the
// entry's JSON payload column.

// WebhookReceivedPayload records every callback hit before any validation.
type WebhookReceivedPayload struct {
	MerchantOid string `json:"merchant_oid"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
	RemoteAddr  string `json:"remote_addr,omitempty"`
}

// BadHashPayload records a callback that failed signature verification.
type BadHashPayload struct {
	MerchantOid string `json:"merchant_oid"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
}

// OrderNotFoundPayload records a callback referencing an unknown order.
type OrderNotFoundPayload struct {
	MerchantOid string `json:"merchant_oid"`
}

// OrderPurchasePayload records a completed payment at the order level.
// Amounts are integer minor units.
type OrderPurchasePayload struct {
	OrderNo           string `json:"order_no"`
	TotalAmount       int    `json:"total_amount"`
	PaymentType       string `json:"payment_type,omitempty"`
	ExperimentVariant string `json:"experiment_variant,omitempty"`
}

// ItemPurchasePayload records a completed payment at the line-item level.
type ItemPurchasePayload struct {
	OrderNo           string `json:"order_no"`
	ProductID         *int64 `json:"product_id,omitempty"`
	Name              string `json:"name"`
	Quantity          int    `json:"quantity"`
	UnitPrice         int    `json:"unit_price"`
	ExperimentVariant string `json:"experiment_variant,omitempty"`
}

// PaymentFailedPayload records a failed payment callback.
type PaymentFailedPayload struct {
	OrderNo    string `json:"order_no"`
	ReasonCode string `json:"reason_code,omitempty"`
	ReasonMsg  string `json:"reason_msg,omitempty"`
}

// OrderReclaimedPayload records a stale pending order released by the sweeper.
type OrderReclaimedPayload struct {
	OrderNo          string `json:"order_no"`
	ThresholdMinutes int    `json:"threshold_minutes"`
	ItemCount        int    `json:"item_count"`
}

// OrderStatusChangedPayload records a manual status transition.
type OrderStatusChangedPayload struct {
	OrderNo string `json:"order_no"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// LoyaltyGrantedPayload records points accrued for a paid order.
type LoyaltyGrantedPayload struct {
	UserEmail string `json:"user_email"`
	OrderNo   string `json:"order_no"`
	Points    int    `json:"points"`
}

// LoyaltyRedeemedPayload records points exchanged for a discount coupon.
type LoyaltyRedeemedPayload struct {
	UserEmail  string `json:"user_email"`
	Points     int    `json:"points"`
	CouponCode string `json:"coupon_code"`
	Percent    int    `json:"percent"`
}

// LoyaltyAdjustedPayload records a manual balance correction.
type LoyaltyAdjustedPayload struct {
	UserEmail string `json:"user_email"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason,omitempty"`
}

// CouponChangedPayload records coupon lifecycle events.
type CouponChangedPayload struct {
	Code string `json:"code"`
}
