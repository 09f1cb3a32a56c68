package models

import "time"

// OrderItem snapshots one product line within an order. ProductID is a soft
// link; the product row may be gone by the time the item is read back.
type OrderItem struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID    int64  `gorm:"column:order_id;not null;index"`
	ProductID  *int64 `gorm:"column:product_id"`
	Name       string `gorm:"column:name;not null"`
	Quantity   int    `gorm:"column:quantity;not null"`
	UnitPrice  int    `gorm:"column:unit_price;not null"`
	TotalPrice int    `gorm:"column:total_price;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
