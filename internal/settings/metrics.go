package settings

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	coercionFailures *prometheus.CounterVec
	commits          prometheus.Counter
	rollbacks        prometheus.Counter
	saves            *prometheus.CounterVec
	reloads          prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		coercionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printhost",
			Subsystem: "settings",
			Name:      "coercion_failures_total",
			Help:      "Typed setter calls whose value could not be coerced.",
		}, []string{"kind"}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printhost",
			Subsystem: "settings",
			Name:      "commits_total",
			Help:      "Write transactions that changed the effective settings.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printhost",
			Subsystem: "settings",
			Name:      "rollbacks_total",
			Help:      "Write transactions discarded because of an error.",
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "printhost",
			Subsystem: "settings",
			Name:      "saves_total",
			Help:      "Durable commits of the override layer by result.",
		}, []string{"result"}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "printhost",
			Subsystem: "settings",
			Name:      "reloads_total",
			Help:      "Reloads that picked up an external change to the settings file.",
		}),
	}
}

func (m *metrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.coercionFailures, m.commits, m.rollbacks, m.saves, m.reloads} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
