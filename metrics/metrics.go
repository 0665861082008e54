// Package metrics exposes Prometheus metrics for the classification service.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Tutortoise/catascan-service/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Predictions   *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	CacheHits     prometheus.Counter
	Requests      *prometheus.CounterVec
}

// New creates the service metrics on a private registry, together with the Go
// runtime and process collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catascan_predictions_total",
				Help: "Total number of successful predictions partitioned by variant and label.",
			},
			[]string{"variant", "label"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catascan_prediction_errors_total",
				Help: "Total number of failed predictions partitioned by pipeline stage.",
			},
			[]string{"stage"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catascan_stage_duration_seconds",
				Help:    "Time spent in each prediction pipeline stage.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"stage"},
		),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catascan_cache_hits_total",
			Help: "Total number of predictions served from the result cache.",
		}),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catascan_http_requests_total",
				Help: "Total number of HTTP requests partitioned by route and status code.",
			},
			[]string{"route", "code"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.Predictions,
		m.Errors,
		m.StageDuration,
		m.CacheHits,
		m.Requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePrediction(variant, label string) {
	m.Predictions.WithLabelValues(variant, label).Inc()
}

func (m *Metrics) ObserveError(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.Errors.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveRequest(route string, code int) {
	m.Requests.WithLabelValues(route, fmt.Sprint(code)).Inc()
}

// ObserveTimings records the non-zero stage durations of one request.
func (m *Metrics) ObserveTimings(t *models.ProcessingTimings) {
	if t == nil {
		return
	}
	if t.CacheHit {
		m.CacheHits.Inc()
	}
	for stage, d := range map[string]time.Duration{
		"upload":     t.Upload,
		"decode":     t.ImageDecode,
		"resize":     t.Resize,
		"preprocess": t.Preprocess,
		"inference":  t.Inference,
		"interpret":  t.Postprocess,
		"persist":    t.Persist,
		"total":      t.Total,
	} {
		if d > 0 {
			m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
		}
	}
}
