// Package gc sweeps pending uploads whose time box has passed, together with
// the blobs that were reserved for them and never committed.
package gc

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

// Purger removes up to limit expired pending uploads.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time, limit int) (*models.PurgeStats, error)
}

// Collector runs sweeps on an interval until stopped. A sweep purges batches
// until one comes back short, paced by a limiter so a large backlog does
// not flood the blob store.
type Collector struct {
	purger    Purger
	log       logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	timeout   time.Duration
	limiter   *rate.Limiter
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewCollector(purger Purger, log logging.Logger, m *metrics.Metrics, cfg *config.Config) *Collector {
	return &Collector{
		purger:    purger,
		log:       log,
		metrics:   m,
		interval:  cfg.SweepInterval,
		batchSize: cfg.SweepBatchSize,
		timeout:   cfg.OperationTimeout,
		limiter:   rate.NewLimiter(rate.Limit(cfg.SweepRate), 1),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the background worker. It does nothing when the worker is
// already running or the collector was stopped.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.stopped {
		return
	}
	c.running = true

	c.log.Info(context.Background(), "starting upload sweeper",
		"interval", c.interval.String(), "batch_size", c.batchSize)
	go c.worker()
}

// Stop signals the worker and waits for it, or for ctx to expire.
// It is safe to call more than once.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	running := c.running
	close(c.stopCh)
	c.mu.Unlock()

	if !running {
		return nil
	}

	select {
	case <-c.doneCh:
		c.log.Info(ctx, "upload sweeper stopped")
		return nil
	case <-ctx.Done():
		c.log.Warn(ctx, "upload sweeper shutdown timeout")
		return ctx.Err()
	}
}

// RunNow performs one full sweep and blocks until it completes.
func (c *Collector) RunNow(ctx context.Context) (*models.PurgeStats, error) {
	return c.sweep(ctx)
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			go func() {
				select {
				case <-c.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()
			stats, err := c.sweep(ctx)
			cancel()

			if err != nil && !errors.Is(err, context.Canceled) {
				c.log.Error(ctx, "upload sweep failed", "error", err)
			} else if stats.Expired > 0 {
				c.log.Info(ctx, "upload sweep completed",
					"expired", stats.Expired, "deleted", stats.Deleted,
					"blobs_deleted", stats.BlobsDeleted, "blob_failures", stats.BlobFailures)
			}

		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) sweep(ctx context.Context) (*models.PurgeStats, error) {
	started := c.now()
	total := &models.PurgeStats{}
	defer func() { c.metrics.Purged(total.Deleted, c.now().Sub(started)) }()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return total, err
		}

		stats, err := c.purger.PurgeExpired(ctx, started, c.batchSize)
		if stats != nil {
			total.Expired += stats.Expired
			total.Deleted += stats.Deleted
			total.BlobsDeleted += stats.BlobsDeleted
			total.BlobFailures += stats.BlobFailures
		}
		if err != nil {
			return total, err
		}
		if stats.Expired < c.batchSize {
			return total, nil
		}
	}
}
