package app

import (
	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/openmall/storefront/config"
	"github.com/openmall/storefront/internal/cart"
	"github.com/openmall/storefront/internal/catalog"
	"github.com/openmall/storefront/internal/discount"
	"github.com/openmall/storefront/internal/inventory"
	"github.com/openmall/storefront/internal/order"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// BusProvider provides the logical event bus
type BusProvider interface {
	Bus() EventBus.Bus
}

// SettingsProvider provides system settings access
type SettingsProvider interface {
	GetSettingsStringValue(category, key string) string
	GetSettingsInt64Value(category, key string) int64
	GetSettingsBoolValue(category, key string) bool
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// ServiceProvider provides the storefront core services
type ServiceProvider interface {
	Ledger() *inventory.Ledger
	Catalog() *catalog.Service
	Carts() *cart.Service
	Discounts() *discount.Evaluator
	Orders() *order.Service
}

// AppContext combines all provider interfaces for full application context.
// Handlers should depend on specific providers or this combined interface.
type AppContext interface {
	DBProvider
	ConfigProvider
	BusProvider
	SettingsProvider
	SchedulerProvider
	ServiceProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
}
