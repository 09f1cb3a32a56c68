package models

import "time"

// Product is the inventory collaborator surface: the core only reads the
// quantity-control flag and applies conditional stock increments.
type Product struct {
	ID                 int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name               string `gorm:"column:name;not null"`
	StockQuantity      int    `gorm:"column:stock_quantity;not null;default:0"`
	QuantityControlled bool   `gorm:"column:quantity_controlled;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
