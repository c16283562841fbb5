package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/cart"
	"github.com/openmall/storefront/internal/discount"
	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/errs"
	"github.com/openmall/storefront/internal/events"
	"github.com/openmall/storefront/internal/inventory"
	"github.com/openmall/storefront/pkg/common"
)

// Customer carries the contact and address details snapshotted onto an
// order.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	Zip     string `json:"zip"`
}

// Detail is an order with its frozen lines and derived fulfillment state.
type Detail struct {
	domain.Order
	Items             []domain.OrderItem `json:"items"`
	FulfillmentStatus string             `json:"fulfillment_status"`
}

// Service governs the order lifecycle. Placing an order converts cart
// reservations into permanent decrements; cancelling restores them. Multi
// product commits run in sorted product-id order with rollback of already
// committed lines on partial failure, so no operation leaves partial state.
type Service struct {
	repo      Repository
	carts     *cart.Service
	ledger    *inventory.Ledger
	discounts *discount.Evaluator
	bus       EventBus.Bus
	taxRate   decimal.Decimal
}

func NewService(repo Repository, carts *cart.Service, ledger *inventory.Ledger, discounts *discount.Evaluator, bus EventBus.Bus, taxRatePercent float64) *Service {
	return &Service{
		repo:      repo,
		carts:     carts,
		ledger:    ledger,
		discounts: discounts,
		bus:       bus,
		taxRate:   decimal.NewFromFloat(taxRatePercent),
	}
}

// Place finalizes a cart into an immutable order in pending status. The
// whole saga runs inside the cart's checkout critical section, so no line
// can be added or changed between the snapshot and the inventory commit.
func (s *Service) Place(ctx context.Context, token string, customer Customer, discountCode string) (*Detail, error) {
	if err := validateCustomer(customer); err != nil {
		return nil, err
	}

	var detail *Detail
	err := s.carts.Checkout(ctx, token, func(c *domain.Cart, lines []domain.CartItem) error {
		if len(lines) == 0 {
			return errs.NewValidation("cart", "cart is empty")
		}

		items, subtotal, err := s.snapshotLines(ctx, lines)
		if err != nil {
			return err
		}

		orderID := common.UUIDint64()

		var disc *discount.Result
		if discountCode != "" {
			disc, err = s.discounts.Evaluate(ctx, lines, discountCode, time.Now())
			if err != nil {
				return err
			}
			// Burn the use first: the per-code critical section decides races
			// on the last remaining use before any inventory moves.
			if err := s.discounts.CommitUsage(ctx, disc.Code, orderID); err != nil {
				return err
			}
		}

		committed, err := s.commitInventory(ctx, lines)
		if err != nil {
			s.rollbackCommitted(ctx, committed)
			if disc != nil {
				s.rollbackDiscount(ctx, disc.Code, orderID)
			}
			return err
		}

		o := s.buildOrder(orderID, customer, subtotal, disc)
		for i := range items {
			items[i].OrderID = orderID
		}
		if err := s.repo.Create(ctx, o, items); err != nil {
			s.rollbackCommitted(ctx, committed)
			if disc != nil {
				s.rollbackDiscount(ctx, disc.Code, orderID)
			}
			return err
		}

		detail = &Detail{Order: *o, Items: items, FulfillmentStatus: FulfillmentStatus(o.Status)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o := detail.Order

	if s.bus != nil {
		s.bus.Publish(events.TopicOrderCreated, events.OrderCreated{
			OrderID: o.ID,
			Number:  o.Number,
			Total:   o.Total,
		})
	}
	zap.L().Info("order placed",
		zap.Int64("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("total", o.Total.String()))

	return detail, nil
}

// UpdateStatus moves an order along the lifecycle. Moving to cancelled is
// delegated to Cancel so inventory restock always happens.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, newStatus string) (*domain.Order, error) {
	if !ValidStatus(newStatus) {
		return nil, &errs.InvalidTransitionError{From: "", To: newStatus}
	}
	if newStatus == StatusCancelled {
		return s.Cancel(ctx, orderID)
	}

	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, newStatus) {
		return nil, &errs.InvalidTransitionError{From: o.Status, To: newStatus}
	}
	prev := o.Status
	moved, err := s.repo.UpdateStatusFrom(ctx, orderID, []string{prev}, newStatus)
	if err != nil {
		return nil, err
	}
	if !moved {
		// A concurrent writer changed the status since the read.
		current, gerr := s.get(ctx, orderID)
		if gerr != nil {
			return nil, gerr
		}
		return nil, &errs.InvalidTransitionError{From: current.Status, To: newStatus}
	}
	o.Status = newStatus
	o.UpdatedAt = time.Now()

	if s.bus != nil {
		s.bus.Publish(events.TopicOrderStatusChanged, events.OrderStatusChanged{
			OrderID: orderID,
			From:    prev,
			To:      newStatus,
		})
	}
	return o, nil
}

// cancellableStatuses are the states Cancel may move from. Delivered and
// cancelled are excluded so the conditional status flip below can have at
// most one winner, and inventory can never be restored twice.
var cancellableStatuses = []string{StatusPending, StatusProcessing, StatusShipped}

// Cancel aborts a non-delivered order, restoring on-hand quantity for
// every line by product id. The status flip is the commit point: it runs
// as a conditional update before any restock, so a concurrent second
// cancel loses the flip and restocks nothing.
func (s *Service) Cancel(ctx context.Context, orderID int64) (*domain.Order, error) {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case StatusDelivered:
		return nil, errs.NewInvalidAction("a delivered order cannot be cancelled")
	case StatusCancelled:
		return nil, errs.NewInvalidAction("order is already cancelled")
	}

	prev := o.Status
	moved, err := s.repo.UpdateStatusFrom(ctx, orderID, cancellableStatuses, StatusCancelled)
	if err != nil {
		return nil, err
	}
	if !moved {
		current, gerr := s.get(ctx, orderID)
		if gerr != nil {
			return nil, gerr
		}
		if current.Status == StatusDelivered {
			return nil, errs.NewInvalidAction("a delivered order cannot be cancelled")
		}
		return nil, errs.NewInvalidAction("order is already cancelled")
	}

	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	restocked := make([]int64, 0, len(items))
	for i := range items {
		if _, err := s.ledger.Adjust(ctx, items[i].ProductID, items[i].Quantity, "order cancelled"); err != nil {
			if errs.IsNotFound(err) {
				// Product deleted since placement; nothing to restock.
				zap.L().Warn("no inventory record to restock",
					zap.Int64("order_id", orderID),
					zap.Int64("product_id", items[i].ProductID))
				continue
			}
			zap.L().Error("restock failed",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", items[i].ProductID),
				zap.Error(err))
			continue
		}
		restocked = append(restocked, items[i].ProductID)
	}

	o.Status = StatusCancelled
	o.UpdatedAt = time.Now()

	if s.bus != nil {
		s.bus.Publish(events.TopicOrderStatusChanged, events.OrderStatusChanged{
			OrderID: orderID, From: prev, To: StatusCancelled,
		})
		s.bus.Publish(events.TopicOrderCancelled, events.OrderCancelled{
			OrderID: orderID, Restocked: restocked,
		})
	}
	zap.L().Info("order cancelled", zap.Int64("order_id", orderID), zap.Int("restocked", len(restocked)))
	return o, nil
}

// Get returns an order with its items and derived fulfillment state.
func (s *Service) Get(ctx context.Context, orderID int64) (*Detail, error) {
	o, err := s.get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &Detail{Order: *o, Items: items, FulfillmentStatus: FulfillmentStatus(o.Status)}, nil
}

// List returns orders with pagination.
func (s *Service) List(ctx context.Context, page, pageSize int) ([]domain.Order, int64, error) {
	return s.repo.List(ctx, page, pageSize)
}

func (s *Service) get(ctx context.Context, orderID int64) (*domain.Order, error) {
	o, err := s.repo.Get(ctx, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NewNotFound("order")
	}
	return o, err
}

// snapshotLines copies cart lines into frozen order items, resolving each
// product title. A line whose product vanished fails the checkout.
func (s *Service) snapshotLines(ctx context.Context, lines []domain.CartItem) ([]domain.OrderItem, decimal.Decimal, error) {
	items := make([]domain.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for i := range lines {
		p, err := s.carts.Product(ctx, lines[i].ProductID)
		if err != nil {
			if errs.IsNotFound(err) {
				return nil, decimal.Zero, errs.NewValidation("items",
					fmt.Sprintf("product %d is no longer available", lines[i].ProductID))
			}
			return nil, decimal.Zero, err
		}
		items = append(items, domain.OrderItem{
			ID:        common.UUIDint64(),
			ProductID: lines[i].ProductID,
			Title:     p.Name,
			Price:     lines[i].Price,
			Quantity:  lines[i].Quantity,
		})
		subtotal = subtotal.Add(lines[i].LineTotal())
	}
	return items, subtotal, nil
}

type committedLine struct {
	productID int64
	quantity  int64
}

// commitInventory converts the cart's reservations into permanent
// decrements, acquiring products in sorted id order. On failure it returns
// the lines already committed so the caller can roll them back.
func (s *Service) commitInventory(ctx context.Context, lines []domain.CartItem) ([]committedLine, error) {
	merged := make(map[int64]int64, len(lines))
	for i := range lines {
		merged[lines[i].ProductID] += lines[i].Quantity
	}
	ids := make([]int64, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	committed := make([]committedLine, 0, len(ids))
	for _, id := range ids {
		if err := s.ledger.CommitReservation(ctx, id, merged[id]); err != nil {
			return committed, err
		}
		committed = append(committed, committedLine{productID: id, quantity: merged[id]})
	}
	return committed, nil
}

// rollbackCommitted restores quantity and re-takes the soft hold for lines
// committed before a failure, returning the ledger to its pre-checkout
// state while the cart still exists.
func (s *Service) rollbackCommitted(ctx context.Context, committed []committedLine) {
	for _, c := range committed {
		if _, err := s.ledger.Adjust(ctx, c.productID, c.quantity, "checkout rollback"); err != nil {
			zap.L().Error("checkout rollback: adjust failed",
				zap.Int64("product_id", c.productID), zap.Error(err))
			continue
		}
		if err := s.ledger.Reserve(ctx, c.productID, c.quantity); err != nil {
			zap.L().Error("checkout rollback: re-reserve failed",
				zap.Int64("product_id", c.productID), zap.Error(err))
		}
	}
}

func (s *Service) rollbackDiscount(ctx context.Context, code string, orderID int64) {
	if err := s.discounts.RollbackUsage(ctx, code, orderID); err != nil {
		zap.L().Error("checkout rollback: discount usage", zap.String("code", code), zap.Error(err))
	}
}

func (s *Service) buildOrder(orderID int64, customer Customer, subtotal decimal.Decimal, disc *discount.Result) *domain.Order {
	discountTotal := decimal.Zero
	shippingWaived := false
	code := ""
	if disc != nil {
		discountTotal = disc.Amount
		shippingWaived = disc.FreeShipping
		code = disc.Code
	}
	taxable := subtotal.Sub(discountTotal)
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	tax := taxable.Mul(s.taxRate).Div(decimal.NewFromInt(100)).Round(2)
	now := time.Now()
	return &domain.Order{
		ID:             orderID,
		Number:         fmt.Sprintf("ORD-%d", orderID),
		Status:         StatusPending,
		CustomerName:   customer.Name,
		Email:          customer.Email,
		Phone:          customer.Phone,
		Address:        customer.Address,
		City:           customer.City,
		Country:        customer.Country,
		Zip:            customer.Zip,
		DiscountCode:   code,
		Subtotal:       subtotal,
		DiscountTotal:  discountTotal,
		TaxTotal:       tax,
		Total:          taxable.Add(tax),
		ShippingWaived: shippingWaived,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func validateCustomer(c Customer) error {
	if c.Name == "" {
		return errs.NewValidation("name", "customer name is required")
	}
	if c.Email == "" {
		return errs.NewValidation("email", "customer email is required")
	}
	if c.Address == "" {
		return errs.NewValidation("address", "shipping address is required")
	}
	return nil
}
