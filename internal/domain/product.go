package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog item. Stock is intentionally not a column here:
// the InventoryRecord is the single source of truth and any product-facing
// stock number is derived from it.
type Product struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	Name       string          `gorm:"size:200;index" json:"name"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Image      string          `gorm:"size:1024" json:"image"`
	Tags       string          `gorm:"size:512" json:"tags"` // comma separated
	Featured   bool            `gorm:"default:false" json:"featured"`
	New        bool            `gorm:"default:false" json:"new"`
	Bestseller bool            `gorm:"default:false" json:"bestseller"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Collection groups products for merchandising and discount scoping.
type Collection struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;index" json:"name"`
	Remark    string    `gorm:"size:512" json:"remark"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CollectionItem is the membership relation between collections and products.
type CollectionItem struct {
	ID           int64 `gorm:"primaryKey" json:"id"`
	CollectionID int64 `gorm:"index;uniqueIndex:idx_collection_product" json:"collection_id"`
	ProductID    int64 `gorm:"index;uniqueIndex:idx_collection_product" json:"product_id"`
}
