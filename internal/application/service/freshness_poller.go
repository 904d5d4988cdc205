// Package service internal/application/service/freshness_poller.go
package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/offlinefx/offlinefx/internal/infrastructure/logger"
	"github.com/offlinefx/offlinefx/internal/metrics"
)

// FreshnessPoller periodically re-evaluates freshness and refreshes the
// metadata gauges the UI and dashboards read. It is advisory polling only,
// never a correctness dependency: cached data is used regardless of what
// the poller observes.
type FreshnessPoller struct {
	rates    *RateService
	interval time.Duration
	logger   logger.Logger
	metrics  *metrics.Metrics
	sched    gocron.Scheduler
}

// NewFreshnessPoller creates a poller over the rate service.
func NewFreshnessPoller(rates *RateService, interval time.Duration, log logger.Logger, m *metrics.Metrics) *FreshnessPoller {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &FreshnessPoller{
		rates:    rates,
		interval: interval,
		logger:   log,
		metrics:  m,
	}
}

// Start schedules the periodic check and stops it when ctx is canceled.
func (p *FreshnessPoller) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	p.sched = scheduler

	_, err = scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.check),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	scheduler.Start()

	go func() {
		<-ctx.Done()
		if sdErr := p.Shutdown(); sdErr != nil {
			p.logger.Error("Freshness poller shutdown error", map[string]interface{}{
				"error": sdErr.Error(),
			})
		}
	}()

	return nil
}

// Shutdown stops the scheduler.
func (p *FreshnessPoller) Shutdown() error {
	if p.sched == nil {
		return nil
	}
	err := p.sched.Shutdown()
	p.sched = nil
	return err
}

func (p *FreshnessPoller) check() {
	view := p.rates.Metadata()
	p.metrics.SetStaleness(view.Stale, view.HoursSinceUpdate)

	p.logger.Debug("Freshness check", map[string]interface{}{
		"stale":              view.Stale,
		"hours_since_update": view.HoursSinceUpdate,
		"offer_refresh":      view.OfferRefresh,
		"source":             string(view.Metadata.Source),
	})
}
