package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is a mutable shopping cart addressed by an opaque bearer token.
type Cart struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"size:64;uniqueIndex" json:"token"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}

// CartItem is one line of a cart. Price is a snapshot taken when the line
// was added; the product reference is weak and the product may be deleted
// while the line still exists.
type CartItem struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	CartID     int64           `gorm:"index" json:"cart_id"`
	ProductID  int64           `gorm:"index" json:"product_id"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	Properties string          `gorm:"type:text" json:"properties"` // JSON key/value bag
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// LineTotal returns price times quantity for this line.
func (i *CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(i.Quantity))
}
