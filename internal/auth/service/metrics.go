package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the engine's Prometheus counters. A nil *Metrics records
// nothing.
type Metrics struct {
	logins        *prometheus.CounterVec
	lockouts      prometheus.Counter
	registrations *prometheus.CounterVec
	verifications *prometheus.CounterVec
	resets        *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	sweepDeleted  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passage_logins_total",
			Help: "Password login attempts by result.",
		}, []string{"result"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "passage_lockouts_total",
			Help: "Failed logins that tipped an account into lockout.",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passage_registrations_total",
			Help: "Registrations by result.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passage_verifications_total",
			Help: "Account verification attempts by result.",
		}, []string{"result"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passage_resets_total",
			Help: "Password reset steps by stage and result.",
		}, []string{"stage", "result"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passage_store_conflicts_total",
			Help: "Optimistic writes that lost a race and were retried.",
		}, []string{"op"}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "passage_sweep_deleted_total",
			Help: "Expired records purged by housekeeping.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.logins,
		m.lockouts,
		m.registrations,
		m.verifications,
		m.resets,
		m.conflicts,
		m.sweepDeleted,
	)
	return m
}

// result is the label value for err: "ok", or the reason or kind.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	if r := ReasonOf(err); r != "" {
		return string(r)
	}
	return KindOf(err).String()
}

func (m *Metrics) login(err error) {
	if m != nil {
		m.logins.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) lockout() {
	if m != nil {
		m.lockouts.Inc()
	}
}

func (m *Metrics) registration(err error) {
	if m != nil {
		m.registrations.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) verification(err error) {
	if m != nil {
		m.verifications.WithLabelValues(result(err)).Inc()
	}
}

func (m *Metrics) reset(stage string, err error) {
	if m != nil {
		m.resets.WithLabelValues(stage, result(err)).Inc()
	}
}

func (m *Metrics) storeConflict(op string) {
	if m != nil {
		m.conflicts.WithLabelValues(op).Inc()
	}
}

// Swept counts records of kind purged by housekeeping.
func (m *Metrics) Swept(kind string, n int64) {
	if m != nil && n > 0 {
		m.sweepDeleted.WithLabelValues(kind).Add(float64(n))
	}
}
