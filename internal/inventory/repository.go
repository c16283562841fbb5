package inventory

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/domain"
)

// Repository handles persistence for inventory records.
type Repository interface {
	// GetByProduct retrieves the record for a product, or gorm.ErrRecordNotFound.
	GetByProduct(ctx context.Context, productID int64) (*domain.InventoryRecord, error)

	// Create inserts a new record.
	Create(ctx context.Context, rec *domain.InventoryRecord) error

	// Save persists all fields of an existing record.
	Save(ctx context.Context, rec *domain.InventoryRecord) error

	// DeleteByProduct removes the record for a product.
	DeleteByProduct(ctx context.Context, productID int64) error

	// List retrieves records with pagination.
	List(ctx context.Context, page, pageSize int) ([]domain.InventoryRecord, int64, error)

	// ListLowStock retrieves tracked records at or below their threshold.
	ListLowStock(ctx context.Context) ([]domain.InventoryRecord, error)
}

// GormRepository is the GORM implementation of Repository.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) GetByProduct(ctx context.Context, productID int64) (*domain.InventoryRecord, error) {
	var rec domain.InventoryRecord
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormRepository) Create(ctx context.Context, rec *domain.InventoryRecord) error {
	return errors.Wrap(r.db.WithContext(ctx).Create(rec).Error, "create inventory record")
}

func (r *GormRepository) Save(ctx context.Context, rec *domain.InventoryRecord) error {
	return errors.Wrap(r.db.WithContext(ctx).Save(rec).Error, "save inventory record")
}

func (r *GormRepository) DeleteByProduct(ctx context.Context, productID int64) error {
	return errors.Wrap(r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Delete(&domain.InventoryRecord{}).Error, "delete inventory record")
}

func (r *GormRepository) List(ctx context.Context, page, pageSize int) ([]domain.InventoryRecord, int64, error) {
	db := r.db.WithContext(ctx).Model(&domain.InventoryRecord{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count inventory records")
	}
	var rows []domain.InventoryRecord
	if err := db.Order("product_id").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list inventory records")
	}
	return rows, total, nil
}

func (r *GormRepository) ListLowStock(ctx context.Context) ([]domain.InventoryRecord, error) {
	var rows []domain.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("tracked = ? AND quantity <= low_stock_threshold", true).
		Order("quantity").
		Find(&rows).Error
	return rows, errors.Wrap(err, "list low stock records")
}
