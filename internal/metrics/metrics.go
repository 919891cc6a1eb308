package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tickflow/models"
)

// Metrics holds every collector the service exports. Instances are created
// with their own registry and passed to the components that record into them,
// so tests can assert on a private registry without global state.
type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal    *prometheus.CounterVec
	TradesTotal      *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	ReconnectsTotal  *prometheus.CounterVec
	ConnectionStatus *prometheus.GaugeVec
	SymbolsMonitored *prometheus.GaugeVec
	RecordsFlushed   prometheus.Counter
	BytesWritten     prometheus.Counter
	FlushDuration    prometheus.Histogram
	BufferSize       prometheus.Gauge
	ChannelDepth     prometheus.Gauge

	mu        sync.RWMutex
	connected map[string]bool
	lastError map[string]string
	started   time.Time
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickflow_messages_total",
			Help: "Market data messages received per exchange.",
		}, []string{"exchange"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickflow_trades_total",
			Help: "Trades received per exchange.",
		}, []string{"exchange"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickflow_errors_total",
			Help: "Errors observed per exchange.",
		}, []string{"exchange"}),
		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickflow_reconnects_total",
			Help: "WebSocket reconnect attempts per exchange.",
		}, []string{"exchange"}),
		ConnectionStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tickflow_connection_status",
			Help: "Connection state per exchange, 1 connected and 0 otherwise.",
		}, []string{"exchange"}),
		SymbolsMonitored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tickflow_symbols_monitored",
			Help: "Symbols currently subscribed per exchange.",
		}, []string{"exchange"}),
		RecordsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickflow_records_flushed_total",
			Help: "Records written to the column store.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickflow_bytes_written_total",
			Help: "Bytes written to the column store.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tickflow_flush_duration_seconds",
			Help:    "Time spent flushing the data buffer to disk.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickflow_buffer_records",
			Help: "Records currently held in the data buffer.",
		}),
		ChannelDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickflow_channel_depth",
			Help: "Messages waiting in the fan-in channel.",
		}),
		connected: make(map[string]bool),
		lastError: make(map[string]string),
		started:   time.Now(),
	}

	registry.MustRegister(
		m.MessagesTotal, m.TradesTotal, m.ErrorsTotal, m.ReconnectsTotal,
		m.ConnectionStatus, m.SymbolsMonitored,
		m.RecordsFlushed, m.BytesWritten, m.FlushDuration,
		m.BufferSize, m.ChannelDepth,
	)
	return m
}

// Registry exposes the backing registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetConnected records the connection state used by both the status gauge and
// the health endpoint.
func (m *Metrics) SetConnected(exchange models.ExchangeID, connected bool) {
	name := exchange.String()
	v := 0.0
	if connected {
		v = 1.0
	}
	m.ConnectionStatus.WithLabelValues(name).Set(v)

	m.mu.Lock()
	m.connected[name] = connected
	m.mu.Unlock()
}

// RecordError counts an error and retains its text for the health endpoint.
func (m *Metrics) RecordError(exchange models.ExchangeID, text string) {
	name := exchange.String()
	m.ErrorsTotal.WithLabelValues(name).Inc()

	m.mu.Lock()
	m.lastError[name] = text
	m.mu.Unlock()
}

// HealthSnapshot is the per-exchange state served by /health.
type HealthSnapshot struct {
	UptimeSeconds int64                     `json:"uptime_seconds"`
	Exchanges     map[string]ExchangeHealth `json:"exchanges"`
}

type ExchangeHealth struct {
	Connected bool   `json:"connected"`
	LastError string `json:"last_error,omitempty"`
}

func (m *Metrics) Health() HealthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := HealthSnapshot{
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		Exchanges:     make(map[string]ExchangeHealth, len(m.connected)),
	}
	for name, connected := range m.connected {
		snap.Exchanges[name] = ExchangeHealth{
			Connected: connected,
			LastError: m.lastError[name],
		}
	}
	return snap
}

// Healthy reports whether at least one exchange connection is live.
func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, connected := range m.connected {
		if connected {
			return true
		}
	}
	return false
}
