// Package metrics counts what the request pipeline does on 401 responses.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "authclient"

const (
	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultCancelled = "cancelled"
)

// Metrics is safe to use through a nil pointer, in which case nothing is recorded.
type Metrics struct {
	Refreshes   *prometheus.CounterVec
	Piggybacks  prometheus.Counter
	Reauth      prometheus.Counter
	Retries     prometheus.Counter
	Exhaustions prometheus.Counter
}

// New creates the collectors and registers them with reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_attempts_total",
			Help:      "Refresh grant network calls by result.",
		}, []string{"result"}),
		Piggybacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_piggybacks_total",
			Help:      "401 recoveries that reused credentials refreshed by another request.",
		}),
		Reauth: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reauthentication_required_total",
			Help:      "401 recoveries that ended with reauthentication required.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Requests replayed after a 401.",
		}),
		Exhaustions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_exhaustions_total",
			Help:      "Credential generations marked unrefreshable.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Refreshes, m.Piggybacks, m.Reauth, m.Retries, m.Exhaustions)
	}
	return m
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) Piggyback() {
	if m == nil {
		return
	}
	m.Piggybacks.Inc()
}

func (m *Metrics) ReauthenticationRequired() {
	if m == nil {
		return
	}
	m.Reauth.Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) Exhausted() {
	if m == nil {
		return
	}
	m.Exhaustions.Inc()
}
