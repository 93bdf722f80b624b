package gc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

// fakePurger serves backlog expired uploads in batches.
type fakePurger struct {
	mu      sync.Mutex
	backlog int
	calls   int
	limits  []int
	err     error
	called  chan struct{}
}

func (f *fakePurger) PurgeExpired(_ context.Context, _ time.Time, limit int) (*models.PurgeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	if f.called != nil {
		select {
		case f.called <- struct{}{}:
		default:
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	n := min(limit, f.backlog)
	f.backlog -= n
	return &models.PurgeStats{Expired: n, Deleted: n, BlobsDeleted: n}, nil
}

func newTestCollector(t *testing.T, p Purger, tweak func(*config.Config)) (*Collector, *metrics.Metrics) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SweepBatchSize = 10
	cfg.SweepRate = 1000
	if tweak != nil {
		tweak(cfg)
	}
	m := metrics.New(prometheus.NewRegistry())
	return NewCollector(p, logging.Nop(), m, cfg), m
}

func TestCollector_RunNowDrainsBacklog(t *testing.T) {
	p := &fakePurger{backlog: 25}
	c, m := newTestCollector(t, p, nil)

	stats, err := c.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &models.PurgeStats{Expired: 25, Deleted: 25, BlobsDeleted: 25}, stats)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []int{10, 10, 10}, p.limits)
	assert.Equal(t, 25.0, testutil.ToFloat64(m.UploadsPurged))
}

func TestCollector_RunNowExactBatchNeedsOneMoreCall(t *testing.T) {
	p := &fakePurger{backlog: 10}
	c, _ := newTestCollector(t, p, nil)

	_, err := c.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestCollector_RunNowError(t *testing.T) {
	p := &fakePurger{err: assert.AnError}
	c, _ := newTestCollector(t, p, nil)

	_, err := c.RunNow(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestCollector_RunNowCancelled(t *testing.T) {
	p := &fakePurger{backlog: 1000}
	c, _ := newTestCollector(t, p, func(cfg *config.Config) { cfg.SweepRate = 0.001 })
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// the first token is free, the second would take far longer than ctx allows
	_, err := c.RunNow(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestCollector_StartStop(t *testing.T) {
	p := &fakePurger{backlog: 3, called: make(chan struct{}, 1)}
	c, _ := newTestCollector(t, p, func(cfg *config.Config) { cfg.SweepInterval = 10 * time.Millisecond })

	c.Start()
	c.Start()

	select {
	case <-p.called:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))

	c.Start()
}

func TestCollector_StopWithoutStart(t *testing.T) {
	c, _ := newTestCollector(t, &fakePurger{}, nil)
	assert.NoError(t, c.Stop(context.Background()))
}
