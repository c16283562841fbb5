package app

import (
	"os"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/openmall/storefront/config"
	"github.com/openmall/storefront/internal/cart"
	"github.com/openmall/storefront/internal/catalog"
	"github.com/openmall/storefront/internal/discount"
	"github.com/openmall/storefront/internal/domain"
	"github.com/openmall/storefront/internal/inventory"
	"github.com/openmall/storefront/internal/order"
)

// Application wires the storefront core together: database, event bus,
// the four transaction services, and the maintenance scheduler.
type Application struct {
	appConfig *config.AppConfig
	gormDB    *gorm.DB
	sched     *cron.Cron
	bus       EventBus.Bus

	ledger    *inventory.Ledger
	catalog   *catalog.Service
	carts     *cart.Service
	discounts *discount.Evaluator
	orders    *order.Service
}

// Ensure Application implements all interfaces
var (
	_ DBProvider       = (*Application)(nil)
	_ ConfigProvider   = (*Application)(nil)
	_ BusProvider      = (*Application)(nil)
	_ ServiceProvider  = (*Application)(nil)
	_ SettingsProvider = (*Application)(nil)
	_ AppContext       = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

// OverrideDB replaces the application's database handle (used in tests).
func (a *Application) OverrideDB(db *gorm.DB) {
	a.gormDB = db
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

func (a *Application) Ledger() *inventory.Ledger      { return a.ledger }
func (a *Application) Catalog() *catalog.Service      { return a.catalog }
func (a *Application) Carts() *cart.Service           { return a.carts }
func (a *Application) Discounts() *discount.Evaluator { return a.discounts }
func (a *Application) Orders() *order.Service         { return a.orders }

func (a *Application) Init(cfg *config.AppConfig) {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	// Initialize zap logger
	var zapConfig zap.Config
	if cfg.Logger.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.OutputPaths = []string{"stdout"}

	// Build logger with file rotation if enabled
	var logger *zap.Logger
	if cfg.Logger.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Logger.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	} else {
		logger, err = zapConfig.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
	}

	zap.ReplaceGlobals(logger)

	// Initialize database connection
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	a.gormDB = getDatabase(cfg.Database, cfg.System.Workdir)
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		zap.S().Errorf("database migration failed: %v", err)
	}

	a.bus = EventBus.New()
	a.initServices()

	a.checkSettings()
	if cfg.Commerce.Seed {
		a.checkSeedData()
	}

	a.initJob()
}

// initServices builds the core services over the shared database handle
// and event bus. Also used by tests after OverrideDB.
func (a *Application) initServices() {
	if a.bus == nil {
		a.bus = EventBus.New()
	}
	a.ledger = inventory.NewLedger(inventory.NewGormRepository(a.gormDB), a.bus)
	a.catalog = catalog.NewService(a.gormDB, a.ledger)
	a.carts = cart.NewService(cart.NewGormRepository(a.gormDB), a.ledger, a.catalog, a.bus)
	a.discounts = discount.NewEvaluator(discount.NewGormRepository(a.gormDB), a.catalog)
	a.orders = order.NewService(order.NewGormRepository(a.gormDB), a.carts, a.ledger,
		a.discounts, a.bus, a.appConfig.Commerce.TaxRatePercent)
}

func (a *Application) MigrateDB(track bool) (err error) {
	if track {
		if err := a.gormDB.Debug().Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	} else {
		if err := a.gormDB.Migrator().AutoMigrate(domain.Tables...); err != nil {
			zap.S().Error(err)
		}
	}
	return nil
}

func (a *Application) DropAll() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
}

func (a *Application) InitDb() {
	_ = a.gormDB.Migrator().DropTable(domain.Tables...)
	err := a.gormDB.Migrator().AutoMigrate(domain.Tables...)
	if err != nil {
		zap.S().Error(err)
	}
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	_ = zap.L().Sync()
}
