package seashell

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values of seashell_instructions_total.
const (
	resultSuccess          = "success"
	resultExecutionFailed  = "execution_failed"
	resultResolutionFailed = "resolution_failed"
)

type metrics struct {
	instructions       *prometheus.CounterVec
	computeUnits       prometheus.Histogram
	resolutionFailures prometheus.Counter
}

// newMetrics registers the session collectors on reg. Sessions sharing a
// registerer share the collectors.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	instructions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seashell",
		Name:      "instructions_total",
		Help:      "Instructions processed, by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	computeUnits, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seashell",
		Name:      "compute_units",
		Help:      "Compute units consumed per executed instruction.",
		Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
	}))
	if err != nil {
		return nil, err
	}

	resolutionFailures, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "seashell",
		Name:      "resolution_failures_total",
		Help:      "Instructions aborted because an account could not be resolved.",
	}))
	if err != nil {
		return nil, err
	}

	return &metrics{
		instructions:       instructions,
		computeUnits:       computeUnits,
		resolutionFailures: resolutionFailures,
	}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
