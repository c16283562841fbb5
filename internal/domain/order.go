package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is an immutable snapshot of a checked-out cart plus customer
// contact details. Items are copied, never referenced, so later catalog
// changes cannot retroactively alter a placed order. Fulfillment state is
// derived from Status and deliberately not stored.
type Order struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	Number         string          `gorm:"size:32;uniqueIndex" json:"number"`
	Status         string          `gorm:"size:20;index" json:"status"`
	CustomerName   string          `gorm:"size:200" json:"customer_name"`
	Email          string          `gorm:"size:200" json:"email"`
	Phone          string          `gorm:"size:64" json:"phone"`
	Address        string          `gorm:"size:512" json:"address"`
	City           string          `gorm:"size:128" json:"city"`
	Country        string          `gorm:"size:128" json:"country"`
	Zip            string          `gorm:"size:32" json:"zip"`
	DiscountCode   string          `gorm:"size:64" json:"discount_code"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(12,2)" json:"subtotal"`
	DiscountTotal  decimal.Decimal `gorm:"type:decimal(12,2)" json:"discount_total"`
	TaxTotal       decimal.Decimal `gorm:"type:decimal(12,2)" json:"tax_total"`
	Total          decimal.Decimal `gorm:"type:decimal(12,2)" json:"total"`
	ShippingWaived bool            `gorm:"default:false" json:"shipping_waived"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderItem is one frozen line of a placed order.
type OrderItem struct {
	ID        int64           `gorm:"primaryKey" json:"id"`
	OrderID   int64           `gorm:"index" json:"order_id"`
	ProductID int64           `gorm:"index" json:"product_id"`
	Title     string          `gorm:"size:200" json:"title"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Quantity  int64           `json:"quantity"`
}
