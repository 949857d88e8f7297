package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

type nodeMetrics struct {
	frames         prometheus.Counter
	protocolErrors prometheus.Counter
	sent           prometheus.Counter
	sendErrors     prometheus.Counter
}

func newNodeMetrics(registerer prometheus.Registerer) (*nodeMetrics, error) {
	m := &nodeMetrics{
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventmsg",
			Subsystem: "node",
			Name:      "frames_total",
			Help:      "Total number of frames assembled and dispatched",
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventmsg",
			Subsystem: "node",
			Name:      "protocol_errors_total",
			Help:      "Total number of frames discarded because of a protocol violation",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventmsg",
			Subsystem: "node",
			Name:      "sent_total",
			Help:      "Total number of frames handed to the transport",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventmsg",
			Subsystem: "node",
			Name:      "send_errors_total",
			Help:      "Total number of sends that failed to encode or write",
		}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.frames, m.protocolErrors, m.sent, m.sendErrors} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
