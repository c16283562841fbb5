package cart

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openmall/storefront/internal/catalog"
	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/errs"
	"github.com/openmall/storefront/internal/inventory"
)

type fixture struct {
	db      *gorm.DB
	ledger  *inventory.Ledger
	catalog *catalog.Service
	carts   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(domain.Tables...))

	bus := EventBus.New()
	ledger := inventory.NewLedger(inventory.NewGormRepository(db), bus)
	cat := catalog.NewService(db, ledger)
	carts := NewService(NewGormRepository(db), ledger, cat, bus)
	return &fixture{db: db, ledger: ledger, catalog: cat, carts: carts}
}

func (f *fixture) product(t *testing.T, name string, price string, stock int64) *domain.Product {
	t.Helper()
	p, err := decimal.NewFromString(price)
	require.NoError(t, err)
	view, err := f.catalog.CreateProduct(context.Background(), &domain.Product{Name: name, Price: p}, stock)
	require.NoError(t, err)
	return &view.Product
}

func qty(n int64) *int64 { return &n }

func TestCart_AddItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Classic Tee", "19.90", 10)

	c, err := f.carts.Create(ctx)
	require.NoError(t, err)

	item, err := f.carts.AddItem(ctx, c.Token, p.ID, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), item.Quantity)
	assert.True(t, item.Price.Equal(p.Price))

	// The line holds a reservation.
	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), avail)
}

func TestCart_AddItemMergesSameLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Classic Tee", "19.90", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)

	first, err := f.carts.AddItem(ctx, c.Token, p.ID, 2, map[string]string{"size": "M"})
	require.NoError(t, err)
	second, err := f.carts.AddItem(ctx, c.Token, p.ID, 3, map[string]string{"size": "M"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(5), second.Quantity)

	// Different properties make a separate line.
	third, err := f.carts.AddItem(ctx, c.Token, p.ID, 1, map[string]string{"size": "L"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	sum, err := f.carts.Summary(ctx, c.Token)
	require.NoError(t, err)
	assert.Len(t, sum.Items, 2)
	assert.Equal(t, int64(6), sum.ItemCount)
}

func TestCart_AddItemInsufficient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Enamel Mug", "12.00", 3)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, c.Token, p.ID, 5, nil)
	ie, isInv := errs.IsInsufficientInventory(err)
	require.True(t, isInv)
	assert.Equal(t, int64(3), ie.Available)

	// No partial reservation, no line written.
	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), avail)
	sum, err := f.carts.Summary(ctx, c.Token)
	require.NoError(t, err)
	assert.Empty(t, sum.Items)
}

func TestCart_AddItemUnknownTokenOrProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Classic Tee", "19.90", 10)

	_, err := f.carts.AddItem(ctx, "no-such-token", p.ID, 1, nil)
	assert.True(t, errs.IsNotFound(err))

	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.Token, 424242, 1, nil)
	assert.True(t, errs.IsNotFound(err))

	_, err = f.carts.AddItem(ctx, c.Token, p.ID, 0, nil)
	assert.True(t, errs.IsValidation(err))
}

func TestCart_UpdateItemValidatesDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Canvas Tote", "14.50", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	item, err := f.carts.AddItem(ctx, c.Token, p.ID, 8, nil)
	require.NoError(t, err)

	// 8 -> 10 needs only 2 more even though 10 > available(2).
	updated, err := f.carts.UpdateItem(ctx, c.Token, item.ID, qty(10), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), updated.Quantity)

	// 10 -> 11 overflows.
	_, err = f.carts.UpdateItem(ctx, c.Token, item.ID, qty(11), nil)
	_, isInv := errs.IsInsufficientInventory(err)
	assert.True(t, isInv)

	// Shrinking releases the difference.
	updated, err = f.carts.UpdateItem(ctx, c.Token, item.ID, qty(1), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Quantity)
	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), avail)
}

func TestCart_UpdateItemZeroRemoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Canvas Tote", "14.50", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	item, err := f.carts.AddItem(ctx, c.Token, p.ID, 4, nil)
	require.NoError(t, err)

	removed, err := f.carts.UpdateItem(ctx, c.Token, item.ID, qty(0), nil)
	require.NoError(t, err)
	assert.Nil(t, removed)

	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), avail)

	_, err = f.carts.UpdateItem(ctx, c.Token, item.ID, qty(2), nil)
	assert.True(t, errs.IsNotFound(err))
}

func TestCart_UpdateItemNilQuantityKeepsLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Canvas Tote", "14.50", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	item, err := f.carts.AddItem(ctx, c.Token, p.ID, 4, map[string]string{"size": "M"})
	require.NoError(t, err)

	// A properties-only update leaves the quantity and its hold alone.
	updated, err := f.carts.UpdateItem(ctx, c.Token, item.ID, nil, map[string]string{"size": "L"})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, int64(4), updated.Quantity)

	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), avail)

	sum, err := f.carts.Summary(ctx, c.Token)
	require.NoError(t, err)
	require.Len(t, sum.Items, 1)
	assert.Equal(t, "L", sum.Items[0].Properties["size"])
	assert.Equal(t, int64(4), sum.Items[0].Quantity)
}

// failingSaveRepo fails the next SaveItem once, then delegates.
type failingSaveRepo struct {
	Repository
	fail bool
}

func (r *failingSaveRepo) SaveItem(ctx context.Context, item *domain.CartItem) error {
	if r.fail {
		r.fail = false
		return errors.New("save cart item: disk full")
	}
	return r.Repository.SaveItem(ctx, item)
}

func TestCart_UpdateItemShrinkSaveFailureKeepsHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Canvas Tote", "14.50", 10)

	repo := &failingSaveRepo{Repository: NewGormRepository(f.db)}
	carts := NewService(repo, f.ledger, f.catalog, EventBus.New())

	c, err := carts.Create(ctx)
	require.NoError(t, err)
	item, err := carts.AddItem(ctx, c.Token, p.ID, 5, nil)
	require.NoError(t, err)

	repo.fail = true
	_, err = carts.UpdateItem(ctx, c.Token, item.ID, qty(2), nil)
	require.Error(t, err)

	// The line still says 5, so the hold must still cover 5.
	rec, err := f.ledger.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rec.ReservedQuantity)
	assert.Equal(t, int64(5), rec.Available())

	got, err := carts.UpdateItem(ctx, c.Token, item.ID, qty(2), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Quantity)
	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), avail)
}

func TestCart_CheckoutBlocksConcurrentMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Classic Tee", "19.90", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.Token, p.ID, 2, nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	checkoutDone := make(chan error, 1)
	go func() {
		checkoutDone <- f.carts.Checkout(ctx, c.Token, func(_ *domain.Cart, items []domain.CartItem) error {
			close(entered)
			<-release
			for i := range items {
				if err := f.ledger.CommitReservation(ctx, items[i].ProductID, items[i].Quantity); err != nil {
					return err
				}
			}
			return nil
		})
	}()
	<-entered

	// A mutation for the same token must wait for the checkout to finish.
	addDone := make(chan error, 1)
	go func() {
		_, aerr := f.carts.AddItem(ctx, c.Token, p.ID, 1, nil)
		addDone <- aerr
	}()
	select {
	case aerr := <-addDone:
		t.Fatalf("AddItem completed during checkout: %v", aerr)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-checkoutDone)
	assert.True(t, errs.IsNotFound(<-addDone))

	rec, err := f.ledger.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), rec.Quantity)
	assert.Equal(t, int64(0), rec.ReservedQuantity)
}

func TestCart_CheckoutErrorKeepsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Classic Tee", "19.90", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.Token, p.ID, 2, nil)
	require.NoError(t, err)

	wantErr := errors.New("payment declined")
	err = f.carts.Checkout(ctx, c.Token, func(_ *domain.Cart, _ []domain.CartItem) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	sum, err := f.carts.Summary(ctx, c.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.ItemCount)
}

func TestCart_RemoveItemReleasesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Wool Beanie", "24.00", 5)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	item, err := f.carts.AddItem(ctx, c.Token, p.ID, 5, nil)
	require.NoError(t, err)

	require.NoError(t, f.carts.RemoveItem(ctx, c.Token, item.ID))
	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), avail)

	err = f.carts.RemoveItem(ctx, c.Token, item.ID)
	assert.True(t, errs.IsNotFound(err))
}

func TestCart_SummaryRecomputes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tee := f.product(t, "Classic Tee", "19.90", 10)
	mug := f.product(t, "Enamel Mug", "12.00", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, c.Token, tee.ID, 2, nil)
	require.NoError(t, err)
	item, err := f.carts.AddItem(ctx, c.Token, mug.ID, 3, nil)
	require.NoError(t, err)

	sum, err := f.carts.Summary(ctx, c.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.ItemCount)
	want, _ := decimal.NewFromString("75.80") // 2*19.90 + 3*12.00
	assert.True(t, sum.Subtotal.Equal(want), "got %s", sum.Subtotal)

	_, err = f.carts.UpdateItem(ctx, c.Token, item.ID, qty(1), nil)
	require.NoError(t, err)
	sum, err = f.carts.Summary(ctx, c.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.ItemCount)
	want, _ = decimal.NewFromString("51.80")
	assert.True(t, sum.Subtotal.Equal(want), "got %s", sum.Subtotal)
}

func TestCart_SummaryMarksDeletedProductUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tee := f.product(t, "Classic Tee", "19.90", 10)
	mug := f.product(t, "Enamel Mug", "12.00", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.Token, tee.ID, 1, nil)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.Token, mug.ID, 2, nil)
	require.NoError(t, err)

	require.NoError(t, f.catalog.DeleteProduct(ctx, mug.ID))

	sum, err := f.carts.Summary(ctx, c.Token)
	require.NoError(t, err)
	require.Len(t, sum.Items, 2)
	var unavailable int
	for _, line := range sum.Items {
		if line.Unavailable {
			unavailable++
		}
	}
	assert.Equal(t, 1, unavailable)
	want, _ := decimal.NewFromString("19.90")
	assert.True(t, sum.Subtotal.Equal(want), "got %s", sum.Subtotal)
	assert.Equal(t, int64(1), sum.ItemCount)
}

func TestCart_ClearReleasesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Classic Tee", "19.90", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.Token, p.ID, 6, nil)
	require.NoError(t, err)

	require.NoError(t, f.carts.Clear(ctx, c.Token))
	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), avail)

	_, err = f.carts.Summary(ctx, c.Token)
	assert.True(t, errs.IsNotFound(err))
}

func TestCart_SweepIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "Classic Tee", "19.90", 10)
	c, err := f.carts.Create(ctx)
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, c.Token, p.ID, 3, nil)
	require.NoError(t, err)

	// Age the cart past the TTL.
	require.NoError(t, f.db.Model(&domain.Cart{}).
		Where("id = ?", c.ID).
		Update("updated_at", time.Now().Add(-2*time.Hour)).Error)

	swept := f.carts.SweepIdle(ctx, time.Hour)
	assert.Equal(t, 1, swept)

	avail, err := f.ledger.GetAvailable(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), avail)
}
