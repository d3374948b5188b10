package fixture

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes as they appear in the outcome label.
const (
	outcomePassed   = "passed"
	outcomeFailed   = "failed"
	outcomeRejected = "rejected"
	outcomeAborted  = "aborted"
)

type metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actest",
			Subsystem: "fixture",
			Name:      "runs_total",
			Help:      "Fixture runs by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actest",
			Subsystem: "fixture",
			Name:      "failures_total",
			Help:      "Failed fixtures by failure kind.",
		}, []string{"kind"}),
	}

	var err error
	if m.runs, err = register(reg, m.runs); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg. When an identical collector is already
// registered, that one is returned so several engines can share a registry.
func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func (m *metrics) run(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *metrics) failure(kind FailureKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(kind)).Inc()
}
