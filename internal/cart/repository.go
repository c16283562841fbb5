package cart

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/domain"
)

// Repository handles persistence for carts and cart items.
type Repository interface {
	// GetByToken retrieves a cart by its token, or gorm.ErrRecordNotFound.
	GetByToken(ctx context.Context, token string) (*domain.Cart, error)

	// Create inserts a new cart.
	Create(ctx context.Context, c *domain.Cart) error

	// Touch bumps the cart's updated_at.
	Touch(ctx context.Context, cartID int64) error

	// Delete removes a cart row.
	Delete(ctx context.Context, cartID int64) error

	// ListItems retrieves all lines of a cart in insertion order.
	ListItems(ctx context.Context, cartID int64) ([]domain.CartItem, error)

	// GetItem retrieves one line of a cart, or gorm.ErrRecordNotFound.
	GetItem(ctx context.Context, cartID, itemID int64) (*domain.CartItem, error)

	// CreateItem inserts a new line.
	CreateItem(ctx context.Context, item *domain.CartItem) error

	// SaveItem persists all fields of an existing line.
	SaveItem(ctx context.Context, item *domain.CartItem) error

	// DeleteItem removes one line.
	DeleteItem(ctx context.Context, cartID, itemID int64) error

	// DeleteItems removes all lines of a cart.
	DeleteItems(ctx context.Context, cartID int64) error

	// ListIdle retrieves carts not updated since the cutoff.
	ListIdle(ctx context.Context, cutoff time.Time) ([]domain.Cart, error)
}

// GormRepository is the GORM implementation of Repository.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetByToken(ctx context.Context, token string) (*domain.Cart, error) {
	var c domain.Cart
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *GormRepository) Create(ctx context.Context, c *domain.Cart) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(c).Error, "create cart")
}

func (r *GormRepository) Touch(ctx context.Context, cartID int64) error {
	return errors.Wrap(r.db.WithContext(ctx).Model(&domain.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", time.Now()).Error, "touch cart")
}

func (r *GormRepository) Delete(ctx context.Context, cartID int64) error {
	return errors.Wrap(r.db.WithContext(ctx).
		Where("id = ?", cartID).Delete(&domain.Cart{}).Error, "delete cart")
}

func (r *GormRepository) ListItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	var items []domain.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("id").
		Find(&items).Error
	return items, errors.Wrap(err, "list cart items")
}

func (r *GormRepository) GetItem(ctx context.Context, cartID, itemID int64) (*domain.CartItem, error) {
	var item domain.CartItem
	if err := r.db.WithContext(ctx).
		Where("cart_id = ? AND id = ?", cartID, itemID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *GormRepository) CreateItem(ctx context.Context, item *domain.CartItem) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(item).Error, "create cart item")
}

func (r *GormRepository) SaveItem(ctx context.Context, item *domain.CartItem) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(item).Error, "save cart item")
}

func (r *GormRepository) DeleteItem(ctx context.Context, cartID, itemID int64) error {
	return errors.Wrap(r.db.WithContext(ctx).
		Where("cart_id = ? AND id = ?", cartID, itemID).
		Delete(&domain.CartItem{}).Error, "delete cart item")
}

func (r *GormRepository) DeleteItems(ctx context.Context, cartID int64) error {
	return errors.Wrap(r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&domain.CartItem{}).Error, "delete cart items")
}

func (r *GormRepository) ListIdle(ctx context.Context, cutoff time.Time) ([]domain.Cart, error) {
	var carts []domain.Cart
	err := r.db.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Find(&carts).Error
	return carts, errors.Wrap(err, "list idle carts")
}
