package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Discount types.
const (
	DiscountPercentage   = "percentage"
	DiscountFixedAmount  = "fixed_amount"
	DiscountFreeShipping = "free_shipping"
)

// Discount applicability scopes.
const (
	ScopeAll         = "all"
	ScopeProducts    = "products"
	ScopeCollections = "collections"
)

// Discount is a promotion code. Codes are matched case-insensitively and
// stored upper-cased. MaxUses of 0 means unlimited; a zero MinPurchase
// means no minimum. Invariant: used_count <= max_uses when max_uses is set.
type Discount struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	Code        string          `gorm:"size:64;uniqueIndex" json:"code"`
	Type        string          `gorm:"size:32" json:"type"`
	Value       decimal.Decimal `gorm:"type:decimal(12,2)" json:"value"`
	MinPurchase decimal.Decimal `gorm:"type:decimal(12,2)" json:"min_purchase"`
	MaxUses     int64           `gorm:"default:0" json:"max_uses"`
	UsedCount   int64           `gorm:"default:0" json:"used_count"`
	StartsAt    *time.Time      `json:"starts_at"`
	EndsAt      *time.Time      `json:"ends_at"`
	Active      bool            `gorm:"default:true" json:"active"`
	Scope       string          `gorm:"size:32;default:'all'" json:"scope"`
	ScopeIDs    string          `gorm:"type:text" json:"scope_ids"` // JSON array of ids
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DiscountRedemption records one committed use of a discount for one order.
// The unique index makes usage commits idempotent per order.
type DiscountRedemption struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:64;index;uniqueIndex:idx_code_order" json:"code"`
	OrderID   int64     `gorm:"uniqueIndex:idx_code_order" json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}
