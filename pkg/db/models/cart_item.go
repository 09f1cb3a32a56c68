package models

import "time"

// CartItem is a line item keyed by an opaque cart token. A successful payment
// spends the cart by deleting its items.
type CartItem struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	CartToken string `gorm:"column:cart_token;not null;index"`
	ProductID int64  `gorm:"column:product_id;not null"`
	Quantity  int    `gorm:"column:quantity;not null"`
	UnitPrice int    `gorm:"column:unit_price;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
