package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/services"
	"github.com/tradepost/tradepost/internal/verify"
	"github.com/tradepost/tradepost/pkg/logger"
)

// Cleaner runs the background housekeeping jobs: expired session removal,
// verification store sweeps, and stale pending-order cancellation.
type Cleaner struct {
	sessions *auth.SessionService
	store    *verify.Store
	orders   *services.OrderService

	staleOrderAge  time.Duration
	cleanupSpec    string
	staleOrderSpec string

	cron *cron.Cron
	log  *zap.Logger
}

// Options configures a Cleaner.
type Options struct {
	Sessions *auth.SessionService
	Store    *verify.Store
	Orders   *services.OrderService

	StaleOrderAge time.Duration
	// CleanupSpec schedules session and store sweeps; StaleOrderSpec
	// schedules pending-order reaping. Cron syntax, @hourly/@daily allowed.
	CleanupSpec    string
	StaleOrderSpec string
}

// NewCleaner constructs a Cleaner.
func NewCleaner(opts Options) (*Cleaner, error) {
	if opts.Sessions == nil || opts.Store == nil || opts.Orders == nil {
		return nil, errors.New("maintenance: sessions, store, and orders are required")
	}

	c := &Cleaner{
		sessions:       opts.Sessions,
		store:          opts.Store,
		orders:         opts.Orders,
		staleOrderAge:  opts.StaleOrderAge,
		cleanupSpec:    opts.CleanupSpec,
		staleOrderSpec: opts.StaleOrderSpec,
		log:            logger.WithModule("maintenance"),
	}
	if c.staleOrderAge <= 0 {
		c.staleOrderAge = services.StalePendingOrderAge
	}
	if c.cleanupSpec == "" {
		c.cleanupSpec = "@hourly"
	}
	if c.staleOrderSpec == "" {
		c.staleOrderSpec = "@daily"
	}
	return c, nil
}

// Start registers the cron jobs and begins scheduling.
func (c *Cleaner) Start(ctx context.Context) error {
	if c.cron != nil {
		return errors.New("maintenance: already started")
	}

	runner := cron.New()
	if _, err := runner.AddFunc(c.cleanupSpec, func() {
		if err := c.runCleanup(ctx); err != nil {
			c.log.Warn("cleanup pass failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	if _, err := runner.AddFunc(c.staleOrderSpec, func() {
		if err := c.runStaleOrders(ctx); err != nil {
			c.log.Warn("stale order pass failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron = runner
	runner.Start()
	c.log.Info("maintenance scheduled",
		zap.String("cleanup", c.cleanupSpec),
		zap.String("stale_orders", c.staleOrderSpec))
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (c *Cleaner) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
	c.cron = nil
}

// RunOnce executes every job immediately. Used at start-up and by tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	return multierr.Combine(
		c.runCleanup(ctx),
		c.runStaleOrders(ctx),
	)
}

func (c *Cleaner) runCleanup(ctx context.Context) error {
	removedSessions, err := c.sessions.CleanupExpired(ctx)
	if err != nil {
		return err
	}

	sweptEntries := c.store.Sweep(time.Now())

	if removedSessions > 0 || sweptEntries > 0 {
		c.log.Info("cleanup pass",
			zap.Int64("sessions_removed", removedSessions),
			zap.Int("entries_swept", sweptEntries))
	}
	return nil
}

func (c *Cleaner) runStaleOrders(ctx context.Context) error {
	cancelled, err := c.orders.CancelStalePending(ctx, c.staleOrderAge)
	if err != nil {
		return err
	}
	if cancelled > 0 {
		c.log.Info("stale pending orders cancelled", zap.Int("count", cancelled))
	}
	return nil
}
