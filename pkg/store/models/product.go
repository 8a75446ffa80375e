package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a cached catalog entry mirrored from the server. The stock
// column is the locally tracked quantity; it drifts below the server value
// while sales are queued offline and converges again on catalog sync.
type Product struct {
	ID              int64           `gorm:"column:id;primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	NameKey         string          `gorm:"column:name_key;not null;index"`
	Barcode         *string         `gorm:"column:barcode;index"`
	SalePrice       decimal.Decimal `gorm:"column:sale_price;type:numeric;not null"`
	PurchaseCost    decimal.Decimal `gorm:"column:purchase_cost;type:numeric;not null"`
	Stock           decimal.Decimal `gorm:"column:stock;type:numeric;not null"`
	Unit            string          `gorm:"column:unit;not null;default:unidad"`
	Category        *string         `gorm:"column:category"`
	AllowFractional bool            `gorm:"column:allow_fractional;not null;default:false"`
	MinStock        decimal.Decimal `gorm:"column:min_stock;type:numeric;not null"`
	Active          bool            `gorm:"column:active;not null;default:true"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;not null"`
}

func (Product) TableName() string { return "products" }
