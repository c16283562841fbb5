package domain

import "time"

// InventoryRecord tracks on-hand and reserved quantity for one product.
// Invariant: quantity - reserved_quantity >= 0 unless AllowBackorder.
// All mutation funnels through the inventory ledger; nothing else writes
// these columns.
type InventoryRecord struct {
	ID                int64     `gorm:"primaryKey" json:"id"`
	ProductID         int64     `gorm:"uniqueIndex" json:"product_id"`
	Quantity          int64     `gorm:"default:0" json:"quantity"`
	ReservedQuantity  int64     `gorm:"default:0" json:"reserved_quantity"`
	LowStockThreshold int64     `gorm:"default:10" json:"low_stock_threshold"`
	Tracked           bool      `gorm:"default:true" json:"tracked"`
	AllowBackorder    bool      `gorm:"default:false" json:"allow_backorder"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Available returns quantity minus reserved.
func (r *InventoryRecord) Available() int64 {
	return r.Quantity - r.ReservedQuantity
}

// LowStock reports whether the record is at or below its threshold.
// Untracked products are never low on stock.
func (r *InventoryRecord) LowStock() bool {
	return r.Tracked && r.Quantity <= r.LowStockThreshold
}
