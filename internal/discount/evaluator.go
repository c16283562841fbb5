package discount

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/errs"
	"github.com/openmall/storefront/pkg/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CollectionLookup resolves collection-scoped applicability.
type CollectionLookup interface {
	// ProductInCollections reports whether the product belongs to at least
	// one of the given collections.
	ProductInCollections(ctx context.Context, productID int64, collectionIDs []int64) (bool, error)
}

// Result is the advisory outcome of evaluating a code against a cart.
// Nothing is mutated until CommitUsage.
type Result struct {
	Code         string          `json:"code"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	FreeShipping bool            `json:"free_shipping"`
}

// Evaluator validates discount codes against cart lines and owns the only
// mutable piece of discount state: the usage counter. Usage commits for
// one code are serialized by a per-code mutex so a maxUses race has
// exactly one winner.
type Evaluator struct {
	repo        Repository
	collections CollectionLookup

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEvaluator(repo Repository, collections CollectionLookup) *Evaluator {
	return &Evaluator{
		repo:        repo,
		collections: collections,
		locks:       make(map[string]*sync.Mutex),
	}
}

// lockCode serializes redemption bookkeeping per code. Entries are never
// evicted; the map grows with the set of codes ever locked.
func (e *Evaluator) lockCode(code string) func() {
	e.mu.Lock()
	m, ok := e.locks[code]
	if !ok {
		m = &sync.Mutex{}
		e.locks[code] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Evaluate checks a code against the cart lines at the given instant.
// The validation order is fixed: existence, active flag, date window,
// usage limit, minimum purchase, applicability scope. The first failing
// check wins.
func (e *Evaluator) Evaluate(ctx context.Context, lines []domain.CartItem, code string, now time.Time) (*Result, error) {
	d, err := e.repo.GetByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("discount code")
	}
	if err != nil {
		return nil, err
	}

	if !d.Active {
		return nil, errs.NewDiscount(errs.CodeDiscountInactive, "discount code is not active")
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return nil, errs.NewDiscount(errs.CodeDiscountNotStarted, "discount code is not active yet")
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return nil, errs.NewDiscount(errs.CodeDiscountExpired, "discount code has expired")
	}
	if d.MaxUses > 0 && d.UsedCount >= d.MaxUses {
		return nil, errs.NewDiscount(errs.CodeDiscountExhausted, "discount code usage limit reached")
	}

	subtotal := decimal.Zero
	for i := range lines {
		subtotal = subtotal.Add(lines[i].LineTotal())
	}
	if d.MinPurchase.IsPositive() && subtotal.LessThan(d.MinPurchase) {
		return nil, errs.NewDiscount(errs.CodeDiscountMinPurchase, "cart subtotal is below the discount minimum")
	}

	matched, err := e.scopeMatches(ctx, d, lines)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, errs.NewDiscount(errs.CodeDiscountNotApplicable, "discount does not apply to any cart item")
	}

	res := &Result{Code: d.Code, Type: d.Type, Amount: decimal.Zero}
	switch d.Type {
	case domain.DiscountPercentage:
		amount := subtotal.Mul(d.Value).Div(decimal.NewFromInt(100))
		if amount.GreaterThan(subtotal) {
			amount = subtotal
		}
		res.Amount = amount.Round(2)
	case domain.DiscountFixedAmount:
		amount := d.Value
		if amount.GreaterThan(subtotal) {
			amount = subtotal
		}
		res.Amount = amount.Round(2)
	case domain.DiscountFreeShipping:
		res.FreeShipping = true
	default:
		return nil, errs.NewValidation("type", "unknown discount type: "+d.Type)
	}
	return res, nil
}

// CommitUsage burns one use of the code for the given order. It is
// idempotent per (code, order): committing twice for the same order counts
// the use once. Two different orders racing on the last remaining use are
// decided inside the per-code critical section.
func (e *Evaluator) CommitUsage(ctx context.Context, code string, orderID int64) error {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	unlock := e.lockCode(normalized)
	defer unlock()

	d, err := e.repo.GetByCode(ctx, normalized)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NewNotFound("discount code")
	}
	if err != nil {
		return err
	}

	done, err := e.repo.HasRedemption(ctx, normalized, orderID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	if d.MaxUses > 0 && d.UsedCount >= d.MaxUses {
		return errs.NewDiscount(errs.CodeDiscountExhausted, "discount code usage limit reached")
	}

	d.UsedCount++
	d.UpdatedAt = time.Now()
	if err := e.repo.Save(ctx, d); err != nil {
		return err
	}
	if err := e.repo.CreateRedemption(ctx, &domain.DiscountRedemption{
		ID:        common.UUIDint64(),
		Code:      normalized,
		OrderID:   orderID,
		CreatedAt: time.Now(),
	}); err != nil {
		// Undo the counter so a storage failure cannot strand a use.
		d.UsedCount--
		if serr := e.repo.Save(ctx, d); serr != nil {
			zap.L().Error("failed to restore discount counter", zap.String("code", normalized), zap.Error(serr))
		}
		return err
	}
	return nil
}

// RollbackUsage compensates a committed use when a later checkout phase
// fails. It is a no-op if no redemption exists for the order.
func (e *Evaluator) RollbackUsage(ctx context.Context, code string, orderID int64) error {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	unlock := e.lockCode(normalized)
	defer unlock()

	done, err := e.repo.HasRedemption(ctx, normalized, orderID)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	d, err := e.repo.GetByCode(ctx, normalized)
	if err != nil {
		return err
	}
	if err := e.repo.DeleteRedemption(ctx, normalized, orderID); err != nil {
		return err
	}
	if d.UsedCount > 0 {
		d.UsedCount--
		d.UpdatedAt = time.Now()
		return e.repo.Save(ctx, d)
	}
	return nil
}

// Create validates and stores a new discount. The code is normalized to
// upper case.
func (e *Evaluator) Create(ctx context.Context, d *domain.Discount) error {
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	if d.Code == "" {
		return errs.NewValidation("code", "code is required")
	}
	switch d.Type {
	case domain.DiscountPercentage, domain.DiscountFixedAmount, domain.DiscountFreeShipping:
	default:
		return errs.NewValidation("type", "type must be percentage, fixed_amount or free_shipping")
	}
	if d.Value.IsNegative() {
		return errs.NewValidation("value", "value must not be negative")
	}
	if d.Scope == "" {
		d.Scope = domain.ScopeAll
	}
	switch d.Scope {
	case domain.ScopeAll, domain.ScopeProducts, domain.ScopeCollections:
	default:
		return errs.NewValidation("scope", "scope must be all, products or collections")
	}
	if _, err := e.repo.GetByCode(ctx, d.Code); err == nil {
		return errs.NewValidation("code", "code already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if d.ID == 0 {
		d.ID = common.UUIDint64()
	}
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	return e.repo.Create(ctx, d)
}

// Get returns a discount by code.
func (e *Evaluator) Get(ctx context.Context, code string) (*domain.Discount, error) {
	d, err := e.repo.GetByCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("discount code")
	}
	return d, err
}

// Delete removes a discount by code.
func (e *Evaluator) Delete(ctx context.Context, code string) error {
	if _, err := e.Get(ctx, code); err != nil {
		return err
	}
	return e.repo.Delete(ctx, code)
}

// List returns discounts with pagination.
func (e *Evaluator) List(ctx context.Context, page, pageSize int) ([]domain.Discount, int64, error) {
	return e.repo.List(ctx, page, pageSize)
}

func (e *Evaluator) scopeMatches(ctx context.Context, d *domain.Discount, lines []domain.CartItem) (bool, error) {
	if d.Scope == domain.ScopeAll || d.Scope == "" {
		return true, nil
	}
	ids, err := decodeScopeIDs(d.ScopeIDs)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}
	switch d.Scope {
	case domain.ScopeProducts:
		set := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		for i := range lines {
			if _, ok := set[lines[i].ProductID]; ok {
				return true, nil
			}
		}
		return false, nil
	case domain.ScopeCollections:
		for i := range lines {
			in, err := e.collections.ProductInCollections(ctx, lines[i].ProductID, ids)
			if err != nil {
				return false, err
			}
			if in {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

// EncodeScopeIDs serializes a scope id set for storage.
func EncodeScopeIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeScopeIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
