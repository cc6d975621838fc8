package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the engine's instrumentation. All methods are nil-safe
// so components can run without metrics wired (tests, simple consumers).
type Metrics struct {
	mutationsTotal    *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	reconnectsTotal   prometheus.Counter
	connectionState   prometheus.Gauge
	contentChunkBytes prometheus.Counter
	nodeCount         *prometheus.GaugeVec
	edgeCount         *prometheus.GaugeVec
}

// NewMetrics registers the engine's collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		mutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canvas",
			Name:      "mutations_total",
			Help:      "Store mutations by layer, operation and outcome.",
		}, []string{"layer", "op", "outcome"}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canvas",
			Name:      "events_received_total",
			Help:      "Inbound stream events by kind.",
		}, []string{"kind"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "canvas",
			Name:      "events_dropped_total",
			Help:      "Inbound stream events dropped by reason.",
		}, []string{"reason"}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "canvas",
			Name:      "bridge_reconnects_total",
			Help:      "Reconnect attempts made by the ingestion bridge.",
		}),
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "canvas",
			Name:      "bridge_connection_state",
			Help:      "Bridge connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting).",
		}),
		contentChunkBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "canvas",
			Name:      "content_chunk_bytes_total",
			Help:      "Bytes of streamed document content accumulated.",
		}),
		nodeCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "canvas",
			Name:      "layer_nodes",
			Help:      "Nodes currently held per layer.",
		}, []string{"layer"}),
		edgeCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "canvas",
			Name:      "layer_edges",
			Help:      "Edges currently held per layer.",
		}, []string{"layer"}),
	}
}

// RecordMutation counts a store mutation and its outcome.
func (m *Metrics) RecordMutation(layer, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.mutationsTotal.WithLabelValues(layer, op, outcome).Inc()
}

// RecordEvent counts an inbound stream event.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind).Inc()
}

// RecordDropped counts a dropped inbound event.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordReconnect counts a bridge reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

// SetConnectionState publishes the bridge's connection state.
func (m *Metrics) SetConnectionState(state float64) {
	if m == nil {
		return
	}
	m.connectionState.Set(state)
}

// AddContentBytes counts streamed content volume.
func (m *Metrics) AddContentBytes(n int) {
	if m == nil {
		return
	}
	m.contentChunkBytes.Add(float64(n))
}

// SetLayerSize publishes a layer's node and edge counts.
func (m *Metrics) SetLayerSize(layer string, nodes, edges int) {
	if m == nil {
		return
	}
	m.nodeCount.WithLabelValues(layer).Set(float64(nodes))
	m.edgeCount.WithLabelValues(layer).Set(float64(edges))
}
