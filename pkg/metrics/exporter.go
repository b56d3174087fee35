// Package metrics exports parser activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatling-report/pkg/parser"
)

const namespace = "gatling_report"

// Exporter implements parser.Observer on its own registry
type Exporter struct {
	registry *prometheus.Registry

	records     *prometheus.CounterVec
	invalid     prometheus.Counter
	cacheMisses prometheus.Counter
	files       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

var _ parser.Observer = (*Exporter)(nil)

// NewExporter creates an exporter with process and Go collectors registered
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Decoded simulation log records by type",
			},
			[]string{"type"},
		),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_records_total",
			Help:      "Binary records skipped as implausible",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "string_cache_misses_total",
			Help:      "Binary string back references with no cached entry",
		}),
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Parsed simulation logs by variant and status",
			},
			[]string{"variant", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "parse_duration_seconds",
				Help:      "Time spent parsing one simulation log",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 20), // 1ms to ~9min
			},
			[]string{"variant"},
		),
	}

	e.registry.MustRegister(
		e.records,
		e.invalid,
		e.cacheMisses,
		e.files,
		e.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return e
}

// Registry exposes the underlying registry
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus text format
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) RecordDecoded(t parser.RecordType) {
	e.records.WithLabelValues(t.String()).Inc()
}

func (e *Exporter) RecordInvalid() {
	e.invalid.Inc()
}

func (e *Exporter) CacheMiss() {
	e.cacheMisses.Inc()
}

func (e *Exporter) FileParsed(v parser.Variant, elapsed time.Duration, err error) {
	e.files.WithLabelValues(v.String(), status(err)).Inc()
	e.duration.WithLabelValues(v.String()).Observe(elapsed.Seconds())
}

// status buckets parse failures into a small label set
func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, parser.ErrFormatUnrecognized):
		return "unrecognized"
	case errors.Is(err, parser.ErrUnsupportedVersion):
		return "unsupported"
	case errors.Is(err, parser.ErrTruncatedStream):
		return "truncated"
	case errors.Is(err, parser.ErrMalformedRecord):
		return "malformed"
	default:
		return "error"
	}
}
