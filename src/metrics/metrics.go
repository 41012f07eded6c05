package metrics

import (
	"market-relay/src/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	UpstreamFrames     *prometheus.CounterVec
	NormalizeErrors    *prometheus.CounterVec
	UpstreamReconnects *prometheus.CounterVec
	UpstreamState      *prometheus.GaugeVec
	ControlFrames      *prometheus.CounterVec

	MessagesBroadcast prometheus.Counter
	MessagesDelivered prometheus.Counter
	ClientDrops       *prometheus.CounterVec
	ClientsConnected  prometheus.Gauge
	SymbolsActive     prometheus.Gauge

	CacheLookups *prometheus.CounterVec
}

// -----------------------------------------------------------------------------

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		UpstreamFrames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_upstream_frames_total",
			Help: "Frames received from the provider, by market",
		}, []string{"market"}),

		NormalizeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_normalize_errors_total",
			Help: "Provider frames that could not be parsed, by market",
		}, []string{"market"}),

		UpstreamReconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_upstream_reconnects_total",
			Help: "Upstream dial attempts after a failure, by market",
		}, []string{"market"}),

		UpstreamState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_upstream_authenticated",
			Help: "1 while the market connection is authenticated",
		}, []string{"market"}),

		ControlFrames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_upstream_control_frames_total",
			Help: "Subscribe/unsubscribe frames written to the provider",
		}, []string{"market", "action"}),

		MessagesBroadcast: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_broadcast_total",
			Help: "Normalized messages handed to the hub",
		}),

		MessagesDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_delivered_total",
			Help: "Messages queued to a client",
		}),

		ClientDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_client_overflow_total",
			Help: "Client queue overflows, by action taken",
		}, []string{"action"}),

		ClientsConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_clients_connected",
			Help: "Currently connected WebSocket clients",
		}),

		SymbolsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_symbols_active",
			Help: "Symbols with at least one subscriber",
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_reference_cache_lookups_total",
			Help: "Reference cache lookups, by result",
		}, []string{"result"}),
	}
}

// -----------------------------------------------------------------------------

func (m *Metrics) RecordUpstreamFrame(market models.Market) {
	if m == nil {
		return
	}
	m.UpstreamFrames.WithLabelValues(string(market)).Inc()
}

func (m *Metrics) RecordNormalizeError(market models.Market) {
	if m == nil {
		return
	}
	m.NormalizeErrors.WithLabelValues(string(market)).Inc()
}

func (m *Metrics) RecordReconnect(market models.Market) {
	if m == nil {
		return
	}
	m.UpstreamReconnects.WithLabelValues(string(market)).Inc()
}

func (m *Metrics) SetUpstreamState(market models.Market, state models.ConnState) {
	if m == nil {
		return
	}
	v := 0.0
	if state == models.StateAuthenticated {
		v = 1
	}
	m.UpstreamState.WithLabelValues(string(market)).Set(v)
}

func (m *Metrics) RecordControlFrame(market models.Market, action string) {
	if m == nil {
		return
	}
	m.ControlFrames.WithLabelValues(string(market), action).Inc()
}

// -----------------------------------------------------------------------------

func (m *Metrics) RecordBroadcast() {
	if m == nil {
		return
	}
	m.MessagesBroadcast.Inc()
}

func (m *Metrics) RecordDelivered(n int) {
	if m == nil {
		return
	}
	m.MessagesDelivered.Add(float64(n))
}

func (m *Metrics) RecordClientDrop(action string) {
	if m == nil {
		return
	}
	m.ClientDrops.WithLabelValues(action).Inc()
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.ClientsConnected.Set(float64(n))
}

func (m *Metrics) SetSymbols(n int) {
	if m == nil {
		return
	}
	m.SymbolsActive.Set(float64(n))
}

// -----------------------------------------------------------------------------

func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
