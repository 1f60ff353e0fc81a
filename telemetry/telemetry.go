// Package telemetry exposes Prometheus metrics, mirroring the teacher's own
// telemetry package: noop stats until InitializeTelemetry runs, then real
// prometheus.Registry-backed instruments. Pool queue depths are sampled by
// PoolCollector and peer liveness is set by the cluster package; the
// gateway, replication and barrier-wait instruments are registered, but no
// code in this repository updates them.
package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/cfg"
)

var registry *prometheus.Registry

type Histogram interface {
	Observe(float64)
}

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
}

type CounterVec interface {
	With(labels ...string) Counter
}

type HistogramVec interface {
	With(labels ...string) Histogram
}

type GaugeVec interface {
	With(labels ...string) Gauge
}

type NoopStat struct{}

func (NoopStat) Observe(float64) {}
func (NoopStat) Set(float64)     {}
func (NoopStat) Inc()            {}
func (NoopStat) Dec()            {}
func (NoopStat) Add(float64)     {}

type noopCounterVec struct{}
type noopHistogramVec struct{}
type noopGaugeVec struct{}

func (noopCounterVec) With(...string) Counter     { return NoopStat{} }
func (noopHistogramVec) With(...string) Histogram { return NoopStat{} }
func (noopGaugeVec) With(...string) Gauge         { return NoopStat{} }

type prometheusCounterVec struct{ vec *prometheus.CounterVec }

func (p *prometheusCounterVec) With(labelValues ...string) Counter {
	return p.vec.WithLabelValues(labelValues...)
}

type prometheusHistogramVec struct{ vec *prometheus.HistogramVec }

func (p *prometheusHistogramVec) With(labelValues ...string) Histogram {
	return p.vec.WithLabelValues(labelValues...)
}

type prometheusGaugeVec struct{ vec *prometheus.GaugeVec }

func (p *prometheusGaugeVec) With(labelValues ...string) Gauge {
	return p.vec.WithLabelValues(labelValues...)
}

func constLabels() prometheus.Labels {
	return prometheus.Labels{"node_id": strconv.FormatUint(cfg.Config.NodeID, 10)}
}

func NewCounter(name, help string) Counter {
	if registry == nil {
		return NoopStat{}
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "dqlited", Name: name, Help: help, ConstLabels: constLabels()})
	registry.MustRegister(c)
	return c
}

func NewGauge(name, help string) Gauge {
	if registry == nil {
		return NoopStat{}
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "dqlited", Name: name, Help: help, ConstLabels: constLabels()})
	registry.MustRegister(g)
	return g
}

func NewHistogramWithBuckets(name, help string, buckets []float64) Histogram {
	if registry == nil {
		return NoopStat{}
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "dqlited", Name: name, Help: help, Buckets: buckets, ConstLabels: constLabels()})
	registry.MustRegister(h)
	return h
}

func NewCounterVec(name, help string, labels []string) CounterVec {
	if registry == nil {
		return noopCounterVec{}
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "dqlited", Name: name, Help: help, ConstLabels: constLabels()}, labels)
	registry.MustRegister(v)
	return &prometheusCounterVec{vec: v}
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) HistogramVec {
	if registry == nil {
		return noopHistogramVec{}
	}
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "dqlited", Name: name, Help: help, Buckets: buckets, ConstLabels: constLabels()}, labels)
	registry.MustRegister(v)
	return &prometheusHistogramVec{vec: v}
}

func NewGaugeVec(name, help string, labels []string) GaugeVec {
	if registry == nil {
		return noopGaugeVec{}
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: "dqlited", Name: name, Help: help, ConstLabels: constLabels()}, labels)
	registry.MustRegister(v)
	return &prometheusGaugeVec{vec: v}
}

// InitializeTelemetry constructs the process-wide registry and registers the
// standard process/Go collectors. Called once from cmd/dqlited before
// InitMetrics.
func InitializeTelemetry() {
	if !cfg.Config.Prometheus.Enabled {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	log.Info().Msg("telemetry: prometheus metrics enabled")
}

// Handler returns the HTTP handler admin mounts at /metrics, or nil if
// telemetry was never initialized.
func Handler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
