package telemetry

import (
	"sync"
	"time"

	"github.com/dqlited/dqlited/internal/pool"
)

// PoolCollector periodically samples a pool's queue depths into the gauges
// registered by InitMetrics, grounded on the teacher's MetricsCollector
// (telemetry/collector.go) repurposed from row-lock stats to pool stats.
type PoolCollector struct {
	pool     *pool.Pool
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewPoolCollector(p *pool.Pool, interval time.Duration) *PoolCollector {
	return &PoolCollector{pool: p, interval: interval, stopCh: make(chan struct{})}
}

func (c *PoolCollector) Start() {
	c.wg.Add(1)
	go c.loop()
}

func (c *PoolCollector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *PoolCollector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopCh:
			return
		}
	}
}

func (c *PoolCollector) collect() {
	if c.pool == nil {
		return
	}
	stats := c.pool.Stats()
	PoolOrderedDepth.Set(float64(stats.OrderedDepth))
	PoolUnorderedDepth.Set(float64(stats.UnorderedDepth))
	PoolInFlight.Set(float64(stats.InFlight))
}
