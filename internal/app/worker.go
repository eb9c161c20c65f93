package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"dms/internal/dms"
	"dms/internal/metrics"
)

// RunWorker runs the background jobs until ctx is cancelled: the retention
// scheduler, the tier-restore poller and, when enabled, the metrics
// endpoint. Events are delivered by the app's consumer throughout.
func (a *DMSApp) RunWorker(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.every(ctx, "purge", a.cfg.Lifecycle.PurgeInterval.Duration, a.service.PurgeDue)
		return nil
	})
	g.Go(func() error {
		a.every(ctx, "tier_restore_poll", a.cfg.Lifecycle.TierPollInterval.Duration, a.service.PollTierRestores)
		return nil
	})
	if a.cfg.Metrics.Enabled {
		srv := metrics.NewServer(a.cfg.Metrics.Listen, a.registry)
		g.Go(func() error {
			a.logger.Info("serving metrics", "addr", a.cfg.Metrics.Listen)
			return srv.Run(ctx)
		})
	}

	a.logger.Info("worker started",
		"purge_interval", a.cfg.Lifecycle.PurgeInterval.Duration,
		"tier_poll_interval", a.cfg.Lifecycle.TierPollInterval.Duration)
	err := g.Wait()
	a.logger.Info("worker stopped")
	return err
}

// every runs job immediately and then once per interval until ctx is done.
func (a *DMSApp) every(ctx context.Context, name string, interval time.Duration, job func(context.Context) ([]dms.ItemResult, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		a.runJob(ctx, name, job)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *DMSApp) runJob(ctx context.Context, name string, job func(context.Context) ([]dms.ItemResult, error)) {
	results, err := job(ctx)
	if err == nil {
		var errs []error
		for _, r := range results {
			if r.Err != nil {
				errs = append(errs, r.Err)
			}
		}
		err = errors.Join(errs...)
	}
	if ctx.Err() != nil {
		return
	}
	a.metrics.BackgroundRun(name, err)
	if err != nil {
		a.logger.Warn("background job failed", "job", name, "items", len(results), "error", err)
		return
	}
	if len(results) > 0 {
		a.logger.Info("background job finished", "job", name, "items", len(results))
	}
}
