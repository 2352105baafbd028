package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK      = "ok"
	resultError   = "error"
	resultTimeout = "timeout"
)

type metrics struct {
	hooks *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		hooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printhost",
			Subsystem: "plugin",
			Name:      "hooks_total",
			Help:      "Extension settings hook calls by hook and result.",
		}, []string{"hook", "result"}),
	}
}

func (m *metrics) observe(hook string, err error) {
	switch {
	case err == nil:
		m.hooks.WithLabelValues(hook, resultOK).Inc()
	case IsTimeout(err):
		m.hooks.WithLabelValues(hook, resultTimeout).Inc()
	default:
		m.hooks.WithLabelValues(hook, resultError).Inc()
	}
}
