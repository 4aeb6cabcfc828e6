package submit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	submissions *prometheus.CounterVec
	responses   *prometheus.CounterVec
}

// newMetrics registers submission metrics. Nil Registerer leaves them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modcert",
			Name:      "submissions_total",
			Help:      "Finished submissions by final state.",
		}, []string{"outcome"}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modcert",
			Name:      "moderator_responses_total",
			Help:      "Moderator responses by result.",
		}, []string{"result"}),
	}
}

func (m *metrics) submission(s State) {
	m.submissions.WithLabelValues(s.String()).Inc()
}

func (m *metrics) response(r Result) {
	m.responses.WithLabelValues(string(r)).Inc()
}
