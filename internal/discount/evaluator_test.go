package discount

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/errs"
)

// memberships is a stub collection lookup keyed by product id.
type memberships map[int64][]int64

func (m memberships) ProductInCollections(_ context.Context, productID int64, collectionIDs []int64) (bool, error) {
	for _, have := range m[productID] {
		for _, want := range collectionIDs {
			if have == want {
				return true, nil
			}
		}
	}
	return false, nil
}

func newTestEvaluator(t *testing.T, collections CollectionLookup) *Evaluator {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	if collections == nil {
		collections = memberships{}
	}
	return NewEvaluator(NewGormRepository(db), collections)
}

func lines(items ...domain.CartItem) []domain.CartItem {
	return items
}

func line(productID int64, qty int64, price string) domain.CartItem {
	p, _ := decimal.NewFromString(price)
	return domain.CartItem{ProductID: productID, Quantity: qty, Price: p}
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestEvaluate_CodeMatchingIsCaseInsensitive(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "save10", Type: domain.DiscountPercentage, Value: dec("10"), Active: true,
	}))

	res, err := e.Evaluate(ctx, lines(line(1, 2, "50.00")), "SAVE10", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", res.Code)
	assert.True(t, res.Amount.Equal(dec("10.00")), "got %s", res.Amount)
}

func TestEvaluate_UnknownCode(t *testing.T) {
	e := newTestEvaluator(t, nil)
	_, err := e.Evaluate(context.Background(), lines(line(1, 1, "10.00")), "NOPE", time.Now())
	assert.True(t, errs.IsNotFound(err))
}

func TestEvaluate_ValidationOrder(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-48 * time.Hour)
	earlier := now.Add(-72 * time.Hour)

	// Inactive AND expired AND exhausted AND below minimum: the first
	// failing check (active flag) must win.
	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "STACKED", Type: domain.DiscountPercentage, Value: dec("10"),
		Active: true, StartsAt: &earlier, EndsAt: &past,
		MaxUses: 1, MinPurchase: dec("1000"),
	}))
	d, err := e.Get(ctx, "STACKED")
	require.NoError(t, err)
	d.Active = false
	d.UsedCount = 1
	require.NoError(t, e.repo.Save(ctx, d))

	_, err = e.Evaluate(ctx, lines(line(1, 1, "10.00")), "STACKED", now)
	assert.Equal(t, errs.CodeDiscountInactive, errs.CodeOf(err))

	d.Active = true
	require.NoError(t, e.repo.Save(ctx, d))
	_, err = e.Evaluate(ctx, lines(line(1, 1, "10.00")), "STACKED", now)
	assert.Equal(t, errs.CodeDiscountExpired, errs.CodeOf(err))

	d.EndsAt = nil
	require.NoError(t, e.repo.Save(ctx, d))
	_, err = e.Evaluate(ctx, lines(line(1, 1, "10.00")), "STACKED", now)
	assert.Equal(t, errs.CodeDiscountExhausted, errs.CodeOf(err))

	d.UsedCount = 0
	require.NoError(t, e.repo.Save(ctx, d))
	_, err = e.Evaluate(ctx, lines(line(1, 1, "10.00")), "STACKED", now)
	assert.Equal(t, errs.CodeDiscountMinPurchase, errs.CodeOf(err))
}

func TestEvaluate_NotStartedYet(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()
	future := time.Now().Add(24 * time.Hour)
	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "SOON", Type: domain.DiscountFixedAmount, Value: dec("5"), Active: true, StartsAt: &future,
	}))
	_, err := e.Evaluate(ctx, lines(line(1, 1, "10.00")), "SOON", time.Now())
	assert.Equal(t, errs.CodeDiscountNotStarted, errs.CodeOf(err))
}

func TestEvaluate_Amounts(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "PCT150", Type: domain.DiscountPercentage, Value: dec("150"), Active: true,
	}))
	res, err := e.Evaluate(ctx, lines(line(1, 1, "40.00")), "PCT150", now)
	require.NoError(t, err)
	// Percentage is capped at the subtotal.
	assert.True(t, res.Amount.Equal(dec("40.00")), "got %s", res.Amount)

	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "FLAT50", Type: domain.DiscountFixedAmount, Value: dec("50"), Active: true,
	}))
	res, err = e.Evaluate(ctx, lines(line(1, 1, "30.00")), "FLAT50", now)
	require.NoError(t, err)
	// Fixed amount never exceeds the subtotal.
	assert.True(t, res.Amount.Equal(dec("30.00")), "got %s", res.Amount)

	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "SHIPFREE", Type: domain.DiscountFreeShipping, Value: decimal.Zero, Active: true,
	}))
	res, err = e.Evaluate(ctx, lines(line(1, 1, "30.00")), "SHIPFREE", now)
	require.NoError(t, err)
	assert.True(t, res.FreeShipping)
	assert.True(t, res.Amount.IsZero())
}

func TestEvaluate_ProductScope(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "TEEONLY", Type: domain.DiscountPercentage, Value: dec("10"), Active: true,
		Scope: domain.ScopeProducts, ScopeIDs: EncodeScopeIDs([]int64{7}),
	}))

	_, err := e.Evaluate(ctx, lines(line(8, 1, "10.00")), "TEEONLY", time.Now())
	assert.Equal(t, errs.CodeDiscountNotApplicable, errs.CodeOf(err))

	res, err := e.Evaluate(ctx, lines(line(8, 1, "10.00"), line(7, 1, "10.00")), "TEEONLY", time.Now())
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(dec("2.00")), "got %s", res.Amount)
}

func TestEvaluate_CollectionScope(t *testing.T) {
	e := newTestEvaluator(t, memberships{7: {100}})
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "WINTER", Type: domain.DiscountFixedAmount, Value: dec("5"), Active: true,
		Scope: domain.ScopeCollections, ScopeIDs: EncodeScopeIDs([]int64{100}),
	}))

	_, err := e.Evaluate(ctx, lines(line(8, 1, "10.00")), "WINTER", time.Now())
	assert.Equal(t, errs.CodeDiscountNotApplicable, errs.CodeOf(err))

	_, err = e.Evaluate(ctx, lines(line(7, 1, "10.00")), "WINTER", time.Now())
	require.NoError(t, err)
}

func TestCommitUsage_IdempotentPerOrder(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "ONCE", Type: domain.DiscountPercentage, Value: dec("10"), MaxUses: 5,
	}))

	require.NoError(t, e.CommitUsage(ctx, "ONCE", 1001))
	require.NoError(t, e.CommitUsage(ctx, "ONCE", 1001))
	require.NoError(t, e.CommitUsage(ctx, "once", 1001))

	d, err := e.Get(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.UsedCount)
}

func TestCommitUsage_MaxUsesRaceHasOneWinner(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "LAST1", Type: domain.DiscountPercentage, Value: dec("10"), MaxUses: 1,
	}))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = e.CommitUsage(ctx, "LAST1", int64(2000+n))
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, errs.CodeDiscountExhausted, errs.CodeOf(err))
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	d, err := e.Get(ctx, "LAST1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.UsedCount)
}

func TestRollbackUsage(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Create(ctx, &domain.Discount{
		Code: "BACK", Type: domain.DiscountPercentage, Value: dec("10"), MaxUses: 1,
	}))

	require.NoError(t, e.CommitUsage(ctx, "BACK", 3001))
	require.NoError(t, e.RollbackUsage(ctx, "BACK", 3001))

	d, err := e.Get(ctx, "BACK")
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.UsedCount)

	// The use is free again.
	require.NoError(t, e.CommitUsage(ctx, "BACK", 3002))

	// Rolling back an order that never committed is a no-op.
	require.NoError(t, e.RollbackUsage(ctx, "BACK", 9999))
	d, err = e.Get(ctx, "BACK")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.UsedCount)
}

func TestCreate_Validation(t *testing.T) {
	e := newTestEvaluator(t, nil)
	ctx := context.Background()

	err := e.Create(ctx, &domain.Discount{Code: "", Type: domain.DiscountPercentage})
	assert.True(t, errs.IsValidation(err))

	err = e.Create(ctx, &domain.Discount{Code: "X", Type: "bogus"})
	assert.True(t, errs.IsValidation(err))

	require.NoError(t, e.Create(ctx, &domain.Discount{Code: "DUP", Type: domain.DiscountPercentage, Value: dec("1")}))
	err = e.Create(ctx, &domain.Discount{Code: "dup", Type: domain.DiscountPercentage, Value: dec("1")})
	assert.True(t, errs.IsValidation(err))
}
