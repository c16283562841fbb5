// Package catalog supplies product and collection lookup to the
// transaction core and owns the catalog CRUD surface. Product-facing stock
// numbers are derived from the inventory ledger; catalog never stores a
// quantity of its own.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/errs"
	"github.com/openmall/storefront/internal/inventory"
	"github.com/openmall/storefront/pkg/common"
)

// ProductView is a product joined with its ledger-derived stock.
type ProductView struct {
	domain.Product
	Stock     int64 `json:"stock"`
	Available int64 `json:"available"`
	LowStock  bool  `json:"low_stock"`
}

type Service struct {
	db     *gorm.DB
	ledger *inventory.Ledger
}

func NewService(db *gorm.DB, ledger *inventory.Ledger) *Service {
	return &Service{db: db, ledger: ledger}
}

// GetProduct retrieves a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound("product")
		}
		return nil, pkgerrors.Wrap(err, "get product")
	}
	return &p, nil
}

// GetCollection retrieves a collection by id.
func (s *Service) GetCollection(ctx context.Context, id int64) (*domain.Collection, error) {
	var c domain.Collection
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NewNotFound("collection")
		}
		return nil, pkgerrors.Wrap(err, "get collection")
	}
	return &c, nil
}

// ProductInCollections reports whether a product belongs to any of the
// given collections. Used for discount applicability.
func (s *Service) ProductInCollections(ctx context.Context, productID int64, collectionIDs []int64) (bool, error) {
	if len(collectionIDs) == 0 {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.CollectionItem{}).
		Where("product_id = ? AND collection_id IN ?", productID, collectionIDs).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(err, "check collection membership")
	}
	return count > 0, nil
}

// CreateProduct stores a new product and creates its inventory record with
// the given starting quantity.
func (s *Service) CreateProduct(ctx context.Context, p *domain.Product, initialStock int64) (*ProductView, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, errs.NewValidation("name", "name is required")
	}
	if p.Price.IsNegative() {
		return nil, errs.NewValidation("price", "price must not be negative")
	}
	if initialStock < 0 {
		return nil, errs.NewValidation("stock", "stock must not be negative")
	}
	if p.ID == 0 {
		p.ID = common.UUIDint64()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "create product")
	}
	rec, err := s.ledger.EnsureRecord(ctx, p.ID, initialStock)
	if err != nil {
		return nil, err
	}
	return &ProductView{Product: *p, Stock: rec.Quantity, Available: rec.Available(), LowStock: rec.LowStock()}, nil
}

// SaveProduct persists catalog fields of an existing product. Stock is not
// writable here; inventory adjustments go through the ledger.
func (s *Service) SaveProduct(ctx context.Context, p *domain.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errs.NewValidation("name", "name is required")
	}
	if p.Price.IsNegative() {
		return errs.NewValidation("price", "price must not be negative")
	}
	p.UpdatedAt = time.Now()
	return pkgerrors.Wrap(s.db.WithContext(ctx).Save(p).Error, "save product")
}

// DeleteProduct removes a product and its inventory record. Cart lines
// referencing it become unavailable; placed orders keep their snapshots.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Product{}).Error; err != nil {
		return pkgerrors.Wrap(err, "delete product")
	}
	if err := s.db.WithContext(ctx).Where("product_id = ?", id).Delete(&domain.CollectionItem{}).Error; err != nil {
		return pkgerrors.Wrap(err, "delete collection memberships")
	}
	return s.ledger.DeleteRecord(ctx, id)
}

// View joins a product with its ledger stock.
func (s *Service) View(ctx context.Context, id int64) (*ProductView, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &ProductView{Product: *p}
	rec, err := s.ledger.Get(ctx, id)
	if err != nil {
		if !errs.IsNotFound(err) {
			return nil, err
		}
		return v, nil
	}
	v.Stock = rec.Quantity
	v.Available = rec.Available()
	v.LowStock = rec.LowStock()
	return v, nil
}

// ListProducts retrieves products with pagination and optional name filter.
func (s *Service) ListProducts(ctx context.Context, q string, page, pageSize int) ([]ProductView, int64, error) {
	db := s.db.WithContext(ctx).Model(&domain.Product{})
	if q = strings.TrimSpace(q); q != "" {
		db = db.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(err, "count products")
	}
	var rows []domain.Product
	if err := db.Order("id").Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(err, "list products")
	}
	views := make([]ProductView, 0, len(rows))
	for i := range rows {
		v := ProductView{Product: rows[i]}
		if rec, err := s.ledger.Get(ctx, rows[i].ID); err == nil {
			v.Stock = rec.Quantity
			v.Available = rec.Available()
			v.LowStock = rec.LowStock()
		}
		views = append(views, v)
	}
	return views, total, nil
}

// AddToCollection adds a product to a collection, ignoring duplicates.
func (s *Service) AddToCollection(ctx context.Context, collectionID, productID int64) error {
	if _, err := s.GetCollection(ctx, collectionID); err != nil {
		return err
	}
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.CollectionItem{}).
		Where("collection_id = ? AND product_id = ?", collectionID, productID).
		Count(&count).Error; err != nil {
		return pkgerrors.Wrap(err, "check collection membership")
	}
	if count > 0 {
		return nil
	}
	return pkgerrors.Wrap(s.db.WithContext(ctx).Create(&domain.CollectionItem{
		ID:           common.UUIDint64(),
		CollectionID: collectionID,
		ProductID:    productID,
	}).Error, "add collection item")
}

// CreateCollection stores a new collection.
func (s *Service) CreateCollection(ctx context.Context, c *domain.Collection) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return errs.NewValidation("name", "name is required")
	}
	if c.ID == 0 {
		c.ID = common.UUIDint64()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	return pkgerrors.Wrap(s.db.WithContext(ctx).Create(c).Error, "create collection")
}
