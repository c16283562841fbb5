package discount

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/domain"
)

// Repository handles persistence for discounts and their redemptions.
type Repository interface {
	// GetByCode retrieves a discount by code, case-insensitively.
	GetByCode(ctx context.Context, code string) (*domain.Discount, error)

	// Create inserts a new discount.
	Create(ctx context.Context, d *domain.Discount) error

	// Save persists all fields of an existing discount.
	Save(ctx context.Context, d *domain.Discount) error

	// Delete removes a discount by code.
	Delete(ctx context.Context, code string) error

	// List retrieves discounts with pagination.
	List(ctx context.Context, page, pageSize int) ([]domain.Discount, int64, error)

	// HasRedemption reports whether usage was already committed for the order.
	HasRedemption(ctx context.Context, code string, orderID int64) (bool, error)

	// CreateRedemption records one committed use.
	CreateRedemption(ctx context.Context, r *domain.DiscountRedemption) error

	// DeleteRedemption removes a redemption (checkout compensation path).
	DeleteRedemption(ctx context.Context, code string, orderID int64) error
}

// GormRepository is the GORM implementation of Repository.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetByCode(ctx context.Context, code string) (*domain.Discount, error) {
	var d domain.Discount
	if err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormRepository) Create(ctx context.Context, d *domain.Discount) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(d).Error, "create discount")
}

func (r *GormRepository) Save(ctx context.Context, d *domain.Discount) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(d).Error, "save discount")
}

func (r *GormRepository) Delete(ctx context.Context, code string) error {
	return errors.Wrap(r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Delete(&domain.Discount{}).Error, "delete discount")
}

func (r *GormRepository) List(ctx context.Context, page, pageSize int) ([]domain.Discount, int64, error) {
	db := r.db.WithContext(ctx).Model(&domain.Discount{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count discounts")
	}
	var rows []domain.Discount
	if err := db.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list discounts")
	}
	return rows, total, nil
}

func (r *GormRepository) HasRedemption(ctx context.Context, code string, orderID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.DiscountRedemption{}).
		Where("code = ? AND order_id = ?", strings.ToUpper(code), orderID).
		Count(&count).Error
	return count > 0, errors.Wrap(err, "count redemptions")
}

func (r *GormRepository) CreateRedemption(ctx context.Context, red *domain.DiscountRedemption) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(red).Error, "create redemption")
}

func (r *GormRepository) DeleteRedemption(ctx context.Context, code string, orderID int64) error {
	return errors.Wrap(r.db.WithContext(ctx).
		Where("code = ? AND order_id = ?", strings.ToUpper(code), orderID).
		Delete(&domain.DiscountRedemption{}).Error, "delete redemption")
}
