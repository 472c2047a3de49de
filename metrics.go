package poorlock

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultOK       = "ok"
	resultLocked   = "locked"
	resultUnlocked = "unlocked"
	resultTimeout  = "timeout"
	resultCanceled = "canceled"
	resultError    = "error"
)

// Metrics receives lock outcomes from a Locker.
type Metrics interface {
	IncAttempt(op, result string)
	IncTimeout()
	ObserveWait(seconds float64, result string)
}

// NoopMetrics implements Metrics without emitting anything.
type NoopMetrics struct{}

func (NoopMetrics) IncAttempt(string, string)   {}
func (NoopMetrics) IncTimeout()                 {}
func (NoopMetrics) ObserveWait(float64, string) {}

// PromMetrics implements Metrics backed by Prometheus collectors.
type PromMetrics struct {
	attempts *prometheus.CounterVec
	timeouts prometheus.Counter
	waits    *prometheus.HistogramVec
}

// NewPromMetrics creates the collectors under namespace and registers them
// with reg. A nil reg uses the default registerer.
func NewPromMetrics(namespace string, reg prometheus.Registerer) (*PromMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PromMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_attempts_total",
			Help:      "Lock store operations by op and result",
		}, []string{"op", "result"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_wait_timeouts_total",
			Help:      "Bounded waits that ran out of budget",
		}),
		waits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent in Wait by result",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{p.attempts, p.timeouts, p.waits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PromMetrics) IncAttempt(op, result string) {
	p.attempts.WithLabelValues(op, result).Inc()
}

func (p *PromMetrics) IncTimeout() {
	p.timeouts.Inc()
}

func (p *PromMetrics) ObserveWait(seconds float64, result string) {
	p.waits.WithLabelValues(result).Observe(seconds)
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.Is(err, ErrAlreadyLocked):
		return resultLocked
	case errors.Is(err, ErrAlreadyUnlocked):
		return resultUnlocked
	default:
		return resultError
	}
}
