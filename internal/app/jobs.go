package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 5m", func() {
		a.SchedCartSweepTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@hourly", func() {
		a.SchedLowStockReportTask()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}
}

// StartBackgroundJobs starts the scheduler loop.
func (a *Application) StartBackgroundJobs(ctx context.Context) {
	a.sched.Start()
	go func() {
		<-ctx.Done()
		a.sched.Stop()
	}()
}

// SchedCartSweepTask clears carts idle past the configured TTL, releasing
// their inventory reservations.
func (a *Application) SchedCartSweepTask() {
	ttlMinutes := a.GetSettingsInt64Value("commerce", "cart_ttl_minutes")
	if ttlMinutes <= 0 {
		ttlMinutes = int64(a.appConfig.Commerce.CartTTLMinutes)
	}
	if ttlMinutes <= 0 {
		return
	}
	a.carts.SweepIdle(context.Background(), time.Duration(ttlMinutes)*time.Minute)
}

// SchedLowStockReportTask logs every tracked product at or below its low
// stock threshold.
func (a *Application) SchedLowStockReportTask() {
	records, err := a.ledger.LowStock(context.Background())
	if err != nil {
		zap.L().Error("low stock report failed", zap.Error(err))
		return
	}
	for i := range records {
		zap.L().Warn("low stock",
			zap.Int64("product_id", records[i].ProductID),
			zap.Int64("quantity", records[i].Quantity),
			zap.Int64("threshold", records[i].LowStockThreshold))
	}
}
