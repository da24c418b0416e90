// Package metrics exposes Prometheus metrics for the dashboard.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcomes.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginLimited = "rate_limited"
)

// Chat outcomes.
const (
	ChatOK          = "ok"
	ChatInvalid     = "invalid"
	ChatUnavailable = "unavailable"
	ChatError       = "error"
)

// Recorder is what handlers and middleware report to. The Prometheus
// Collector implements it; tests can pass Nop.
type Recorder interface {
	ObserveRequest(method, route string, status int, d time.Duration)
	Login(outcome string)
	Upload(renamed bool)
	Chat(outcome string)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	logins   *prometheus.CounterVec
	uploads  *prometheus.CounterVec
	chats    *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates the metrics and registers them, together with the Go
// runtime and process collectors, on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediahub_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediahub_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediahub_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediahub_uploads_total",
			Help: "Stored uploads, split by whether the name had to change.",
		}, []string{"renamed"}),
		chats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediahub_chat_requests_total",
			Help: "Chat prompts by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.requests,
		c.duration,
		c.logins,
		c.uploads,
		c.chats,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) Login(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) Upload(renamed bool) {
	c.uploads.WithLabelValues(strconv.FormatBool(renamed)).Inc()
}

func (c *Collector) Chat(outcome string) {
	c.chats.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveRequest(string, string, int, time.Duration) {}
func (Nop) Login(string)                                      {}
func (Nop) Upload(bool)                                       {}
func (Nop) Chat(string)                                       {}
