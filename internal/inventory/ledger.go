package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/errs"
	"github.com/openmall/storefront/internal/events"
)

// Unlimited is the availability sentinel for untracked products.
const Unlimited int64 = 1<<31 - 1

// DefaultLowStockThreshold is applied to new records without an explicit
// threshold.
const DefaultLowStockThreshold int64 = 10

// AdjustResult reports the quantity before and after an adjustment.
type AdjustResult struct {
	PreviousQuantity int64 `json:"previous_quantity"`
	NewQuantity      int64 `json:"new_quantity"`
}

// Ledger owns all inventory mutation. Every operation on a product runs
// inside that product's critical section, so two concurrent reservations
// can never both observe stale availability and jointly oversell.
type Ledger struct {
	repo  Repository
	bus   EventBus.Bus
	locks *kmutex
}

func NewLedger(repo Repository, bus EventBus.Bus) *Ledger {
	return &Ledger{repo: repo, bus: bus, locks: newKmutex()}
}

// EnsureRecord creates the inventory record for a product if it does not
// exist yet. Called when a product is created.
func (l *Ledger) EnsureRecord(ctx context.Context, productID, quantity int64) (*domain.InventoryRecord, error) {
	unlock := l.locks.Lock(productID)
	defer unlock()

	rec, err := l.repo.GetByProduct(ctx, productID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	rec = &domain.InventoryRecord{
		ProductID:         productID,
		Quantity:          quantity,
		LowStockThreshold: DefaultLowStockThreshold,
		Tracked:           true,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	if err := l.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the inventory record for a product.
func (l *Ledger) Get(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	rec, err := l.repo.GetByProduct(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("inventory record")
	}
	return rec, err
}

// GetAvailable returns quantity minus reserved for a tracked product, or
// the Unlimited sentinel when tracking is disabled.
func (l *Ledger) GetAvailable(ctx context.Context, productID int64) (int64, error) {
	rec, err := l.Get(ctx, productID)
	if err != nil {
		return 0, err
	}
	if !rec.Tracked {
		return Unlimited, nil
	}
	return rec.Available(), nil
}

// Adjust applies a manual delta to on-hand quantity. A delta that would
// drive quantity negative fails with NegativeStockError and leaves the
// record untouched.
func (l *Ledger) Adjust(ctx context.Context, productID, delta int64, reason string) (*AdjustResult, error) {
	unlock := l.locks.Lock(productID)
	defer unlock()

	rec, err := l.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	next := rec.Quantity + delta
	if next < 0 {
		err := &errs.NegativeStockError{ProductID: productID, Quantity: rec.Quantity, Delta: delta}
		zap.L().Error("inventory anomaly: adjustment below zero",
			zap.Int64("product_id", productID),
			zap.Int64("quantity", rec.Quantity),
			zap.Int64("delta", delta),
			zap.String("reason", reason))
		return nil, err
	}
	prev := rec.Quantity
	rec.Quantity = next
	rec.UpdatedAt = time.Now()
	if err := l.repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	l.emit(rec, reason)
	return &AdjustResult{PreviousQuantity: prev, NewQuantity: next}, nil
}

// Reserve places a soft hold against availability. It fails with
// InsufficientInventoryError when the amount exceeds what is available,
// unless the product is untracked or allows backorders. No partial effect
// on failure.
func (l *Ledger) Reserve(ctx context.Context, productID, amount int64) error {
	if amount <= 0 {
		return errs.NewValidation("amount", "reserve amount must be positive")
	}
	unlock := l.locks.Lock(productID)
	defer unlock()

	rec, err := l.Get(ctx, productID)
	if err != nil {
		return err
	}
	if !rec.Tracked {
		return nil
	}
	if amount > rec.Available() && !rec.AllowBackorder {
		return &errs.InsufficientInventoryError{
			ProductID: productID,
			Requested: amount,
			Available: rec.Available(),
		}
	}
	rec.ReservedQuantity += amount
	rec.UpdatedAt = time.Now()
	if err := l.repo.Save(ctx, rec); err != nil {
		return err
	}
	l.emit(rec, "reserve")
	return nil
}

// Release returns a soft hold to availability, floored at zero reserved.
func (l *Ledger) Release(ctx context.Context, productID, amount int64) error {
	if amount <= 0 {
		return nil
	}
	unlock := l.locks.Lock(productID)
	defer unlock()

	rec, err := l.Get(ctx, productID)
	if err != nil {
		return err
	}
	if !rec.Tracked {
		return nil
	}
	rec.ReservedQuantity -= amount
	if rec.ReservedQuantity < 0 {
		rec.ReservedQuantity = 0
	}
	rec.UpdatedAt = time.Now()
	if err := l.repo.Save(ctx, rec); err != nil {
		return err
	}
	l.emit(rec, "release")
	return nil
}

// CommitReservation converts a soft hold into a permanent decrement:
// quantity is reduced and the reservation released in one step. Used at
// order placement.
func (l *Ledger) CommitReservation(ctx context.Context, productID, amount int64) error {
	if amount <= 0 {
		return errs.NewValidation("amount", "commit amount must be positive")
	}
	unlock := l.locks.Lock(productID)
	defer unlock()

	rec, err := l.Get(ctx, productID)
	if err != nil {
		return err
	}
	if !rec.Tracked {
		return nil
	}
	next := rec.Quantity - amount
	if next < 0 && !rec.AllowBackorder {
		err := &errs.NegativeStockError{ProductID: productID, Quantity: rec.Quantity, Delta: -amount}
		zap.L().Error("inventory anomaly: commit exceeds on-hand quantity",
			zap.Int64("product_id", productID),
			zap.Int64("quantity", rec.Quantity),
			zap.Int64("amount", amount))
		return err
	}
	rec.Quantity = next
	rec.ReservedQuantity -= amount
	if rec.ReservedQuantity < 0 {
		rec.ReservedQuantity = 0
	}
	rec.UpdatedAt = time.Now()
	if err := l.repo.Save(ctx, rec); err != nil {
		return err
	}
	l.emit(rec, "order placement")
	return nil
}

// UpdateSettings patches threshold/tracking/backorder flags on a record.
// Nil fields are left unchanged.
func (l *Ledger) UpdateSettings(ctx context.Context, productID int64, threshold *int64, tracked, allowBackorder *bool) (*domain.InventoryRecord, error) {
	unlock := l.locks.Lock(productID)
	defer unlock()

	rec, err := l.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if threshold != nil {
		if *threshold < 0 {
			return nil, errs.NewValidation("low_stock_threshold", "threshold must not be negative")
		}
		rec.LowStockThreshold = *threshold
	}
	if tracked != nil {
		rec.Tracked = *tracked
	}
	if allowBackorder != nil {
		rec.AllowBackorder = *allowBackorder
	}
	rec.UpdatedAt = time.Now()
	if err := l.repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteRecord removes a product's inventory record. Called when the
// product itself is deleted.
func (l *Ledger) DeleteRecord(ctx context.Context, productID int64) error {
	unlock := l.locks.Lock(productID)
	defer unlock()
	return l.repo.DeleteByProduct(ctx, productID)
}

// List returns inventory records with pagination.
func (l *Ledger) List(ctx context.Context, page, pageSize int) ([]domain.InventoryRecord, int64, error) {
	return l.repo.List(ctx, page, pageSize)
}

// LowStock returns all tracked records at or below their threshold.
func (l *Ledger) LowStock(ctx context.Context) ([]domain.InventoryRecord, error) {
	return l.repo.ListLowStock(ctx)
}

func (l *Ledger) emit(rec *domain.InventoryRecord, reason string) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(events.TopicInventoryUpdated, events.InventoryUpdated{
		ProductID: rec.ProductID,
		Quantity:  rec.Quantity,
		Reserved:  rec.ReservedQuantity,
		Available: rec.Available(),
		Reason:    reason,
	})
}
