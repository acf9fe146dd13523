package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// EventsBroadcastTotal counts event payloads queued to subscribers.
	EventsBroadcastTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yieldledger_stream_events_broadcast_total",
		Help: "Total number of event payloads queued to websocket subscribers",
	})

	// SubscribersGauge tracks connected websocket subscribers.
	SubscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yieldledger_stream_subscribers",
		Help: "Number of connected websocket subscribers",
	})
)
