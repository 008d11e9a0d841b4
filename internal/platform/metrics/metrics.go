// Package metrics exposes Prometheus collectors for admissions, appointment
// status changes, HTTP traffic and the database pool.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carebook/carebook/internal/platform/db"
)

const namespace = "carebook"

// Metrics owns a registry so that several instances (one per test) never
// collide on the global default registerer.
type Metrics struct {
	registry      *prometheus.Registry
	admissions    *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Appointment admission attempts by outcome.",
			},
			[]string{"outcome"},
		),
		statusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_changes_total",
				Help:      "Appointment cancel/confirm attempts by outcome.",
			},
			[]string{"op", "outcome"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		m.admissions,
		m.statusChanges,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAdmission counts one admission attempt. outcome is "admitted" or an
// error kind such as "CapacityExceeded".
func (m *Metrics) ObserveAdmission(outcome string) {
	m.admissions.WithLabelValues(outcome).Inc()
}

// ObserveStatusChange counts one cancel or confirm attempt.
func (m *Metrics) ObserveStatusChange(op, outcome string) {
	m.statusChanges.WithLabelValues(op, outcome).Inc()
}

// RegisterPool exports pool statistics as gauges read at scrape time.
func (m *Metrics) RegisterPool(stats func() *db.PoolStats) {
	gauge := func(name, help string, value func(*db.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return value(stats()) })
	}

	m.registry.MustRegister(
		gauge("total_conns", "Connections currently open.", func(s *db.PoolStats) float64 { return float64(s.TotalConns) }),
		gauge("idle_conns", "Idle connections.", func(s *db.PoolStats) float64 { return float64(s.IdleConns) }),
		gauge("acquired_conns", "Connections checked out.", func(s *db.PoolStats) float64 { return float64(s.AcquiredConns) }),
		gauge("max_conns", "Configured pool size.", func(s *db.PoolStats) float64 { return float64(s.MaxConns) }),
	)
}

// Middleware records request counts and latency labelled by route template,
// so /doctors/1 and /doctors/2 share a series.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}
