// Package metrics collects and exposes the portal's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the services and the HTTP middleware record into.
type Recorder interface {
	RecordAccountCreated()
	RecordAccountConflict()
	RecordInvalidCredential()
	RecordLogin(success bool)
	RecordHTTPRequest(method, route string, status int, latency time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	accountsCreated    prometheus.Counter
	accountConflicts   prometheus.Counter
	invalidCredentials prometheus.Counter
	logins             *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpLatency        *prometheus.HistogramVec
}

// NewCollector builds a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_accounts_created_total",
			Help: "Accounts created.",
		}),
		accountConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_account_conflicts_total",
			Help: "Account creations rejected because the name or email is taken.",
		}),
		invalidCredentials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_invalid_credentials_total",
			Help: "Account creations rejected for a too short password.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.accountsCreated,
		c.accountConflicts,
		c.invalidCredentials,
		c.logins,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) RecordAccountCreated() { c.accountsCreated.Inc() }

func (c *Collector) RecordAccountConflict() { c.accountConflicts.Inc() }

func (c *Collector) RecordInvalidCredential() { c.invalidCredentials.Inc() }

func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, latency time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

// Nop discards everything. Used when metrics are disabled and in tests.
type Nop struct{}

func (Nop) RecordAccountCreated() {}
func (Nop) RecordAccountConflict() {}
func (Nop) RecordInvalidCredential() {}
func (Nop) RecordLogin(bool) {}
func (Nop) RecordHTTPRequest(string, string, int, time.Duration) {}

// Handler serves the gathered metrics in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
