// Package paytr implements the PayTR notification token scheme used to
// authenticate payment callbacks.
package paytr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Config carries the merchant credentials issued by PayTR.
type Config struct {
	MerchantID   string
	MerchantKey  string
	MerchantSalt string
}

// Configured reports whether the full credential set is present.
func (c Config) Configured() bool {
	return c.MerchantID != "" && c.MerchantKey != "" && c.MerchantSalt != ""
}

// Client computes and verifies notification tokens.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// Token returns the expected hash for a notification. PayTR signs the
// concatenation of merchant_oid, the merchant salt, status and total_amount
// with HMAC-SHA256 keyed by the merchant key, then base64-encodes the digest.
func (c *Client) Token(merchantOid, status, totalAmount string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.MerchantKey))
	mac.Write([]byte(merchantOid + c.cfg.MerchantSalt + status + totalAmount))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks a received hash against the expected token in constant time.
func (c *Client) Verify(merchantOid, status, totalAmount, received string) bool {
	expected := c.Token(merchantOid, status, totalAmount)
	return hmac.Equal([]byte(expected), []byte(received))
}
