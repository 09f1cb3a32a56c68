package enums

import "fmt"

// AuditAction names an event kind written to the audit log.
type AuditAction string

const (
	AuditActionWebhookReceived    AuditAction = "webhook_received"
	AuditActionBadHash            AuditAction = "bad_hash"
	AuditActionOrderNotFound      AuditAction = "order_not_found"
	AuditActionOrderPurchase      AuditAction = "order_purchase"
	AuditActionItemPurchase       AuditAction = "item_purchase"
	AuditActionPaymentFailed      AuditAction = "payment_failed"
	AuditActionOrderReclaimed     AuditAction = "order_reclaimed"
	AuditActionOrderStatusChanged AuditAction = "order_status_changed"
	AuditActionLoyaltyGranted     AuditAction = "loyalty_granted"
	AuditActionLoyaltyRedeemed    AuditAction = "loyalty_redeemed"
	AuditActionLoyaltyAdjusted    AuditAction = "loyalty_adjusted"
	AuditActionCouponCreated      AuditAction = "coupon_created"
	AuditActionCouponUpdated      AuditAction = "coupon_updated"
	AuditActionCouponDisabled     AuditAction = "coupon_disabled"
)

var validAuditActions = []AuditAction{
	AuditActionWebhookReceived,
	AuditActionBadHash,
	AuditActionOrderNotFound,
	AuditActionOrderPurchase,
	AuditActionItemPurchase,
	AuditActionPaymentFailed,
	AuditActionOrderReclaimed,
	AuditActionOrderStatusChanged,
	AuditActionLoyaltyGranted,
	AuditActionLoyaltyRedeemed,
	AuditActionLoyaltyAdjusted,
	AuditActionCouponCreated,
	AuditActionCouponUpdated,
	AuditActionCouponDisabled,
}

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts raw input into an AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}
