// Package metrics exports client events as Prometheus metrics.
//
// A Collector is an event handler; register it with the client and expose
// its registry over HTTP:
//
//	reg := prometheus.NewRegistry()
//	col := metrics.New(metrics.WithRegistry(reg))
//	c, err := locolink.New(cfg, locolink.WithHandler(col))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bft-labs/locolink/pkg/locolink"
)

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "locolink").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for connection lifetimes in seconds.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer

	// Now is the clock used to time connections. Default: time.Now
	Now func() time.Time
}

// Option configures a Collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the connection lifetime buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// WithClock sets the clock used to time connections.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// DefaultBuckets spans one second to one hour.
var DefaultBuckets = []float64{1, 5, 15, 60, 300, 900, 3600}

func defaultConfig() Config {
	return Config{
		Namespace: "locolink",
		Buckets:   DefaultBuckets,
		Registry:  prometheus.DefaultRegisterer,
		Now:       time.Now,
	}
}

// Collector records client events. It implements locolink.EventHandler and
// locolink.SessionEventHandler.
type Collector struct {
	locolink.BaseEventHandler

	now func() time.Time

	connectAttempts prometheus.Counter
	connects        prometheus.Counter
	disconnects     *prometheus.CounterVec
	errors          prometheus.Counter
	frames          *prometheus.CounterVec
	connected       prometheus.Gauge
	searching       prometheus.Gauge
	connLifetime    prometheus.Histogram

	mu          sync.Mutex
	connectedAt time.Time
}

// New creates a Collector and registers its metrics. Registration panics on
// a duplicate, as promauto does; use a fresh registry per client.
func New(opts ...Option) *Collector {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = DefaultBuckets
	}
	factory := promauto.With(cfg.Registry)

	return &Collector{
		now: cfg.Now,

		connectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connect_attempts_total",
			Help:        "Total number of dial attempts",
			ConstLabels: cfg.ConstLabels,
		}),

		connects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connects_total",
			Help:        "Total number of established connections",
			ConstLabels: cfg.ConstLabels,
		}),

		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "sessions_ended_total",
			Help:        "Total number of ended sessions by termination",
			ConstLabels: cfg.ConstLabels,
		}, []string{"termination"}),

		errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "transport_errors_total",
			Help:        "Total number of reported transport errors",
			ConstLabels: cfg.ConstLabels,
		}),

		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "frames_received_total",
			Help:        "Total number of verified frames received",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connected",
			Help:        "1 while a connection to the controller is open",
			ConstLabels: cfg.ConstLabels,
		}),

		searching: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "searching",
			Help:        "1 while a connect attempt is in progress",
			ConstLabels: cfg.ConstLabels,
		}),

		connLifetime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connection_lifetime_seconds",
			Help:        "Lifetime of established connections in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),
	}
}

func (c *Collector) OnConnectStart() { c.searching.Set(1) }
func (c *Collector) OnConnectStop()  { c.searching.Set(0) }
func (c *Collector) OnError(string)  { c.errors.Inc() }

func (c *Collector) OnStatus(s locolink.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch s {
	case locolink.StatusConnected:
		c.connects.Inc()
		c.connected.Set(1)
		c.connectedAt = c.now()
	case locolink.StatusDisconnected:
		c.connected.Set(0)
		if !c.connectedAt.IsZero() {
			c.connLifetime.Observe(c.now().Sub(c.connectedAt).Seconds())
			c.connectedAt = time.Time{}
		}
	}
}

func (c *Collector) OnFrame(f locolink.Frame) {
	kind := "data"
	if f.IsControl() {
		kind = "control"
	}
	c.frames.WithLabelValues(kind).Inc()
}

// OnSessionState counts dial attempts and classifies every ended session.
func (c *Collector) OnSessionState(ev locolink.SessionStateEvent) {
	switch {
	case ev.Current == locolink.SessionConnecting:
		c.connectAttempts.Inc()
	case ev.Previous == locolink.SessionClosing && ev.Current == locolink.SessionIdle:
		c.disconnects.WithLabelValues(ev.Reason).Inc()
	}
}

var (
	_ locolink.EventHandler        = (*Collector)(nil)
	_ locolink.SessionEventHandler = (*Collector)(nil)
)
