package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/errs"
	"github.com/openmall/storefront/internal/events"
	"github.com/openmall/storefront/internal/inventory"
	"github.com/openmall/storefront/pkg/common"
)

// json sorts map keys so serialized property bags compare byte-for-byte.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ProductLookup is the catalog capability the cart engine consumes.
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// Summary is the recomputed view of a cart's current lines.
type Summary struct {
	Token     string          `json:"token"`
	ItemCount int64           `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	UpdatedAt time.Time       `json:"updated_at"`
	Items     []LineSummary   `json:"items"`
}

// LineSummary is one cart line with its current total. Unavailable marks
// lines whose product was deleted after the line was added; such lines are
// excluded from the subtotal.
type LineSummary struct {
	ItemID      int64             `json:"item_id"`
	ProductID   int64             `json:"product_id"`
	Title       string            `json:"title"`
	Quantity    int64             `json:"quantity"`
	Price       decimal.Decimal   `json:"price"`
	Total       decimal.Decimal   `json:"total"`
	Properties  map[string]string `json:"properties,omitempty"`
	Unavailable bool              `json:"unavailable,omitempty"`
}

// Service is the cart engine. Mutations for one token are serialized by a
// per-token mutex; availability checks and reservation holds go through the
// inventory ledger, never directly to quantity columns.
type Service struct {
	repo     Repository
	ledger   *inventory.Ledger
	products ProductLookup
	bus      EventBus.Bus

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(repo Repository, ledger *inventory.Ledger, products ProductLookup, bus EventBus.Bus) *Service {
	return &Service{
		repo:     repo,
		ledger:   ledger,
		products: products,
		bus:      bus,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockToken serializes mutations for one token. Entries are never
// evicted; the map grows with the set of tokens ever locked.
func (s *Service) lockToken(token string) func() {
	s.mu.Lock()
	m, ok := s.locks[token]
	if !ok {
		m = &sync.Mutex{}
		s.locks[token] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Create starts a new empty cart and returns it with a fresh token.
func (s *Service) Create(ctx context.Context) (*domain.Cart, error) {
	now := time.Now()
	c := &domain.Cart{
		ID:        common.UUIDint64(),
		Token:     common.UUID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) getCart(ctx context.Context, token string) (*domain.Cart, error) {
	c, err := s.repo.GetByToken(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("cart")
	}
	return c, err
}

// AddItem appends a product line to the cart, or merges into an existing
// line for the same product and properties. The requested quantity is
// reserved against the ledger before the line is written; on an inventory
// conflict the cart is left unchanged.
func (s *Service) AddItem(ctx context.Context, token string, productID, quantity int64, properties map[string]string) (*domain.CartItem, error) {
	if quantity <= 0 {
		return nil, errs.NewValidation("quantity", "quantity must be a positive integer")
	}
	unlock := s.lockToken(token)
	defer unlock()

	c, err := s.getCart(ctx, token)
	if err != nil {
		return nil, err
	}
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.NewNotFound("product")
		}
		return nil, err
	}

	props, err := encodeProperties(properties)
	if err != nil {
		return nil, errs.NewValidation("properties", "properties must be a flat key/value map")
	}

	items, err := s.repo.ListItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	var existing *domain.CartItem
	for i := range items {
		if items[i].ProductID == productID && items[i].Properties == props {
			existing = &items[i]
			break
		}
	}

	// The merge target already holds a reservation for its quantity, so
	// only the added amount is reserved here.
	if err := s.ledger.Reserve(ctx, productID, quantity); err != nil {
		return nil, err
	}

	now := time.Now()
	if existing != nil {
		existing.Quantity += quantity
		existing.UpdatedAt = now
		if err := s.repo.SaveItem(ctx, existing); err != nil {
			s.rollbackReserve(ctx, productID, quantity)
			return nil, err
		}
		s.touch(ctx, c)
		return existing, nil
	}

	item := &domain.CartItem{
		ID:         common.UUIDint64(),
		CartID:     c.ID,
		ProductID:  productID,
		Quantity:   quantity,
		Price:      p.Price,
		Properties: props,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		s.rollbackReserve(ctx, productID, quantity)
		return nil, err
	}
	s.touch(ctx, c)
	return item, nil
}

// UpdateItem changes a line's quantity and/or properties. A nil quantity
// leaves the current quantity alone; zero or less removes the line. Only
// the quantity delta is validated against availability, since the line
// already holds a reservation for its current quantity.
func (s *Service) UpdateItem(ctx context.Context, token string, itemID int64, quantity *int64, properties map[string]string) (*domain.CartItem, error) {
	unlock := s.lockToken(token)
	defer unlock()

	c, err := s.getCart(ctx, token)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.GetItem(ctx, c.ID, itemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("cart item")
	}
	if err != nil {
		return nil, err
	}

	if quantity != nil && *quantity <= 0 {
		if err := s.removeLine(ctx, c, item); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var delta int64
	if quantity != nil {
		delta = *quantity - item.Quantity
	}
	switch {
	case delta > 0:
		if err := s.ledger.Reserve(ctx, item.ProductID, delta); err != nil {
			return nil, err
		}
	case delta < 0:
		if err := s.ledger.Release(ctx, item.ProductID, -delta); err != nil {
			return nil, err
		}
	}

	if quantity != nil {
		item.Quantity = *quantity
	}
	if properties != nil {
		props, perr := encodeProperties(properties)
		if perr != nil {
			if delta > 0 {
				s.rollbackReserve(ctx, item.ProductID, delta)
			} else if delta < 0 {
				s.restoreReserve(ctx, item.ProductID, -delta)
			}
			return nil, errs.NewValidation("properties", "properties must be a flat key/value map")
		}
		item.Properties = props
	}
	item.UpdatedAt = time.Now()
	if err := s.repo.SaveItem(ctx, item); err != nil {
		if delta > 0 {
			s.rollbackReserve(ctx, item.ProductID, delta)
		} else if delta < 0 {
			s.restoreReserve(ctx, item.ProductID, -delta)
		}
		return nil, err
	}
	s.touch(ctx, c)
	return item, nil
}

// RemoveItem deletes a line and releases its reservation.
func (s *Service) RemoveItem(ctx context.Context, token string, itemID int64) error {
	unlock := s.lockToken(token)
	defer unlock()

	c, err := s.getCart(ctx, token)
	if err != nil {
		return err
	}
	item, err := s.repo.GetItem(ctx, c.ID, itemID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NewNotFound("cart item")
	}
	if err != nil {
		return err
	}
	return s.removeLine(ctx, c, item)
}

// Clear destroys the cart, releasing every reservation it holds. This is
// also the hook external TTL policies invoke.
func (s *Service) Clear(ctx context.Context, token string) error {
	unlock := s.lockToken(token)
	defer unlock()

	c, err := s.getCart(ctx, token)
	if err != nil {
		return err
	}
	items, err := s.repo.ListItems(ctx, c.ID)
	if err != nil {
		return err
	}
	for i := range items {
		if err := s.ledger.Release(ctx, items[i].ProductID, items[i].Quantity); err != nil && !errs.IsNotFound(err) {
			return err
		}
	}
	if err := s.repo.DeleteItems(ctx, c.ID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, c.ID); err != nil {
		return err
	}
	s.emit(c, 0)
	return nil
}

// Summary recomputes item count and subtotal from the current lines on
// every call. Nothing here is cached.
func (s *Service) Summary(ctx context.Context, token string) (*Summary, error) {
	c, err := s.getCart(ctx, token)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Token:     c.Token,
		Subtotal:  decimal.Zero,
		UpdatedAt: c.UpdatedAt,
		Items:     make([]LineSummary, 0, len(items)),
	}
	for i := range items {
		line := LineSummary{
			ItemID:    items[i].ID,
			ProductID: items[i].ProductID,
			Quantity:  items[i].Quantity,
			Price:     items[i].Price,
			Total:     items[i].LineTotal(),
		}
		if props, perr := decodeProperties(items[i].Properties); perr == nil {
			line.Properties = props
		}
		p, perr := s.products.GetProduct(ctx, items[i].ProductID)
		if perr != nil {
			if !errs.IsNotFound(perr) {
				return nil, perr
			}
			line.Unavailable = true
			line.Total = decimal.Zero
		} else {
			line.Title = p.Name
			sum.ItemCount += items[i].Quantity
			sum.Subtotal = sum.Subtotal.Add(line.Total)
		}
		sum.Items = append(sum.Items, line)
	}
	return sum, nil
}

// Items returns the cart and its current lines. Used by the order
// lifecycle at checkout.
func (s *Service) Items(ctx context.Context, token string) (*domain.Cart, []domain.CartItem, error) {
	c, err := s.getCart(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.ListItems(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}
	return c, items, nil
}

// Product resolves a product through the engine's catalog lookup. Shared
// with the order lifecycle so both sides see the same catalog.
func (s *Service) Product(ctx context.Context, id int64) (*domain.Product, error) {
	return s.products.GetProduct(ctx, id)
}

// Checkout runs fn against a stable snapshot of the cart, holding the
// token lock for the whole call so no mutation can slip in between the
// snapshot and whatever fn commits. When fn succeeds the cart is
// destroyed without releasing reservations, since fn has converted the
// holds into permanent decrements.
func (s *Service) Checkout(ctx context.Context, token string, fn func(c *domain.Cart, items []domain.CartItem) error) error {
	unlock := s.lockToken(token)
	defer unlock()

	c, err := s.getCart(ctx, token)
	if err != nil {
		return err
	}
	items, err := s.repo.ListItems(ctx, c.ID)
	if err != nil {
		return err
	}
	if err := fn(c, items); err != nil {
		return err
	}

	// The order exists at this point. A leftover cart row is recoverable,
	// a lost order is not, so delete failures are only logged.
	if err := s.repo.DeleteItems(ctx, c.ID); err != nil {
		zap.L().Warn("failed to delete cart items after checkout",
			zap.String("token", token), zap.Error(err))
		return nil
	}
	if err := s.repo.Delete(ctx, c.ID); err != nil {
		zap.L().Warn("failed to delete cart after checkout",
			zap.String("token", token), zap.Error(err))
	}
	return nil
}

// SweepIdle clears carts whose last update is older than ttl, releasing
// their reservations. Invoked by the scheduled maintenance job.
func (s *Service) SweepIdle(ctx context.Context, ttl time.Duration) int {
	carts, err := s.repo.ListIdle(ctx, time.Now().Add(-ttl))
	if err != nil {
		zap.L().Error("cart sweep query failed", zap.Error(err))
		return 0
	}
	swept := 0
	for i := range carts {
		if err := s.Clear(ctx, carts[i].Token); err != nil {
			zap.L().Warn("cart sweep clear failed",
				zap.String("token", carts[i].Token), zap.Error(err))
			continue
		}
		swept++
	}
	if swept > 0 {
		zap.L().Info("expired carts cleared", zap.Int("count", swept))
	}
	return swept
}

func (s *Service) removeLine(ctx context.Context, c *domain.Cart, item *domain.CartItem) error {
	if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil && !errs.IsNotFound(err) {
		return err
	}
	if err := s.repo.DeleteItem(ctx, c.ID, item.ID); err != nil {
		return err
	}
	s.touch(ctx, c)
	return nil
}

// rollbackReserve undoes a reservation after a failed write so a storage
// error cannot leak a hold.
func (s *Service) rollbackReserve(ctx context.Context, productID, amount int64) {
	if err := s.ledger.Release(ctx, productID, amount); err != nil {
		zap.L().Error("failed to roll back reservation",
			zap.Int64("product_id", productID),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}

// restoreReserve re-takes a hold released ahead of a write that then
// failed, so the line's stored quantity stays covered.
func (s *Service) restoreReserve(ctx context.Context, productID, amount int64) {
	if err := s.ledger.Reserve(ctx, productID, amount); err != nil {
		zap.L().Error("failed to restore reservation",
			zap.Int64("product_id", productID),
			zap.Int64("amount", amount),
			zap.Error(err))
	}
}

func (s *Service) touch(ctx context.Context, c *domain.Cart) {
	if err := s.repo.Touch(ctx, c.ID); err != nil {
		zap.L().Warn("failed to touch cart", zap.Int64("cart_id", c.ID), zap.Error(err))
	}
	items, err := s.repo.ListItems(ctx, c.ID)
	if err != nil {
		return
	}
	var count int64
	for i := range items {
		count += items[i].Quantity
	}
	s.emit(c, count)
}

func (s *Service) emit(c *domain.Cart, itemCount int64) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.TopicCartUpdated, events.CartUpdated{
		CartID:    c.ID,
		Token:     c.Token,
		ItemCount: itemCount,
	})
}

func encodeProperties(props map[string]string) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeProperties(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var props map[string]string
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, err
	}
	return props, nil
}
