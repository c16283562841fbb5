package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/pkg/common"
)

type settingDef struct {
	Type    string
	Name    string
	Default string
	Remark  string
}

var settingDefs = []settingDef{
	{"commerce", "cart_ttl_minutes", "1440", "Idle minutes before a cart is swept and its reservations released"},
	{"commerce", "low_stock_threshold", "10", "Default low stock threshold for new inventory records"},
	{"commerce", "tax_rate_percent", "0", "Tax rate applied to the discounted subtotal at checkout"},
}

// checkSettings initializes missing settings rows with their defaults.
func (a *Application) checkSettings() {
	for sortid, def := range settingDefs {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", def.Type, def.Name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				ID:     common.UUIDint64(),
				Sort:   sortid,
				Type:   def.Type,
				Name:   def.Name,
				Value:  def.Default,
				Remark: def.Remark,
			})
			zap.L().Info("initialized setting",
				zap.String("key", def.Type+"."+def.Name),
				zap.String("default", def.Default))
		}
	}
}

// GetSettingsStringValue retrieves a string configuration value
func (a *Application) GetSettingsStringValue(category, key string) string {
	var cfg domain.SysConfig
	if err := a.gormDB.Where("type = ? and name = ?", category, key).First(&cfg).Error; err != nil {
		return ""
	}
	return cfg.Value
}

// GetSettingsInt64Value retrieves an int64 configuration value
func (a *Application) GetSettingsInt64Value(category, key string) int64 {
	return cast.ToInt64(a.GetSettingsStringValue(category, key))
}

// GetSettingsBoolValue retrieves a boolean configuration value
func (a *Application) GetSettingsBoolValue(category, key string) bool {
	return cast.ToBool(a.GetSettingsStringValue(category, key))
}

// checkSeedData loads a demo catalog when the product table is empty.
func (a *Application) checkSeedData() {
	var count int64
	a.gormDB.Model(&domain.Product{}).Count(&count)
	if count > 0 {
		return
	}

	ctx := context.Background()
	seed := []struct {
		name  string
		price string
		stock int64
		tags  string
	}{
		{"Classic Tee", "19.90", 100, "apparel"},
		{"Canvas Tote", "14.50", 50, "accessories"},
		{"Enamel Mug", "12.00", 25, "kitchen"},
		{"Wool Beanie", "24.00", 8, "apparel,winter"},
	}
	for _, s := range seed {
		price, _ := decimal.NewFromString(s.price)
		_, err := a.catalog.CreateProduct(ctx, &domain.Product{
			Name:      s.name,
			Price:     price,
			Tags:      s.tags,
			CreatedAt: time.Now(),
		}, s.stock)
		if err != nil {
			zap.L().Error("seed product failed", zap.String("name", s.name), zap.Error(err))
		}
	}
	zap.L().Info("seeded demo catalog", zap.Int("products", len(seed)))
}
