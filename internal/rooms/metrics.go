package rooms

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts room lifecycle events. A nil *Metrics records nothing.
type Metrics struct {
	created prometheus.Counter
	deleted prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer, registry *Registry) (*Metrics, error) {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_rooms_created_total",
			Help: "Temporary voice channels created.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voice_rooms_deleted_total",
			Help: "Temporary voice channels removed.",
		}),
	}
	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "voice_rooms_active",
		Help: "Temporary voice channels currently tracked.",
	}, func() float64 {
		return float64(registry.Len())
	})

	for _, c := range []prometheus.Collector{m.created, m.deleted, active} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) roomCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) roomDeleted() {
	if m != nil {
		m.deleted.Inc()
	}
}
