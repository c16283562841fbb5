package order

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/domain"
)

// Repository handles persistence for orders and their frozen items.
type Repository interface {
	// Create inserts an order and its items in one transaction.
	Create(ctx context.Context, o *domain.Order, items []domain.OrderItem) error

	// Get retrieves an order by id, or gorm.ErrRecordNotFound.
	Get(ctx context.Context, orderID int64) (*domain.Order, error)

	// UpdateStatusFrom persists a status change only if the current status
	// is one of from, reporting whether the row was updated. Concurrent
	// writers racing on the same transition get exactly one winner.
	UpdateStatusFrom(ctx context.Context, orderID int64, from []string, to string) (bool, error)

	// ListItems retrieves the frozen lines of an order.
	ListItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error)

	// List retrieves orders with pagination, newest first.
	List(ctx context.Context, page, pageSize int) ([]domain.Order, int64, error)
}

// GormRepository is the GORM implementation of Repository.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, o *domain.Order, items []domain.OrderItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "create order")
}

func (r *GormRepository) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.WithContext(ctx).First(&o, orderID).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *GormRepository) UpdateStatusFrom(ctx context.Context, orderID int64, from []string, to string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "update order status")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormRepository) ListItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	var items []domain.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&items).Error
	return items, errors.Wrap(err, "list order items")
}

func (r *GormRepository) List(ctx context.Context, page, pageSize int) ([]domain.Order, int64, error) {
	db := r.db.WithContext(ctx).Model(&domain.Order{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}
	var rows []domain.Order
	if err := db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return rows, total, nil
}
