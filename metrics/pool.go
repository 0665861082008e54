package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolSnapshot is a point-in-time view of the inference session pool.
type PoolSnapshot struct {
	Size            int
	Available       int
	InUse           int
	TotalAcquired   int64
	TotalReleased   int64
	AcquireFailures int64
	Discarded       int64
}

type poolCollector struct {
	snapshot func() PoolSnapshot

	size      *prometheus.Desc
	available *prometheus.Desc
	inUse     *prometheus.Desc
	acquired  *prometheus.Desc
	released  *prometheus.Desc
	failures  *prometheus.Desc
	discarded *prometheus.Desc
}

// RegisterPool exposes the pool counters, read from snapshot at scrape time.
func (m *Metrics) RegisterPool(snapshot func() PoolSnapshot) error {
	return m.registry.Register(&poolCollector{
		snapshot:  snapshot,
		size:      prometheus.NewDesc("catascan_pool_size", "Configured number of inference sessions.", nil, nil),
		available: prometheus.NewDesc("catascan_pool_available_sessions", "Idle inference sessions.", nil, nil),
		inUse:     prometheus.NewDesc("catascan_pool_sessions_in_use", "Inference sessions currently acquired.", nil, nil),
		acquired:  prometheus.NewDesc("catascan_pool_acquired_total", "Total session acquisitions.", nil, nil),
		released:  prometheus.NewDesc("catascan_pool_released_total", "Total session releases.", nil, nil),
		failures:  prometheus.NewDesc("catascan_pool_acquire_failures_total", "Total acquisitions that timed out.", nil, nil),
		discarded: prometheus.NewDesc("catascan_pool_discarded_total", "Total sessions dropped after a failed run.", nil, nil),
	})
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.available
	ch <- c.inUse
	ch <- c.acquired
	ch <- c.released
	ch <- c.failures
	ch <- c.discarded
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(s.Available))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.CounterValue, float64(s.TotalAcquired))
	ch <- prometheus.MustNewConstMetric(c.released, prometheus.CounterValue, float64(s.TotalReleased))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(s.AcquireFailures))
	ch <- prometheus.MustNewConstMetric(c.discarded, prometheus.CounterValue, float64(s.Discarded))
}
