package payments

import (
	"net/url"

	pkgerrors "github.com/candemirel/vitrin-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// StatusSuccess is the provider's value for a completed payment. Anything
// else is treated as a failure.
const StatusSuccess = "success"

// Notification is one PayTR callback, decoded from the form body. Amount and
// hash keep their raw string form; the hash is computed over the exact bytes
// the provider sent.
type Notification struct {
	MerchantOid      string
	Status           string
	TotalAmount      string
	Hash             string
	FailedReasonCode string
	FailedReasonMsg  string
	PaymentType      string
	Currency         string
	TestMode         string
}

// ParseNotification extracts a notification from submitted form values.
func ParseNotification(values url.Values) Notification {
	return Notification{
		MerchantOid:      values.Get("merchant_oid"),
		Status:           values.Get("status"),
		TotalAmount:      values.Get("total_amount"),
		Hash:             values.Get("hash"),
		FailedReasonCode: values.Get("failed_reason_code"),
		FailedReasonMsg:  values.Get("failed_reason_msg"),
		PaymentType:      values.Get("payment_type"),
		Currency:         values.Get("currency"),
		TestMode:         values.Get("test_mode"),
	}
}

// EventID identifies one delivery for redelivery dedup. The provider hash
// covers the oid, status and amount, so two callbacks with the same id carry
// the same outcome. Empty when the notification is not identifiable.
func (n Notification) EventID() string {
	if n.MerchantOid == "" || n.Hash == "" {
		return ""
	}
	return n.MerchantOid + ":" + n.Hash
}

// Complete reports whether the fields required for verification are present.
func (n Notification) Complete() bool {
	return n.MerchantOid != "" && n.Status != "" && n.TotalAmount != "" && n.Hash != ""
}

// AmountMinorUnits parses the decimal-as-string amount into integer minor
// units.
func (n Notification) AmountMinorUnits() (int, error) {
	d, err := decimal.NewFromString(n.TotalAmount)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unparseable total_amount")
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "total_amount has sub-minor precision")
	}
	return int(shifted.IntPart()), nil
}
