package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus instruments, grounded on
// cuemby-warren/pkg/metrics's gauge/counter layout. The engine updates
// these on every commit/abort/deadlock-victim/site event; nothing here
// is scraped by the engine itself; a caller registers the bundle
// against its own registry (or serves it over HTTP, as cmd/repcrec
// does), keeping performance tuning out of this package's concerns.
type Metrics struct {
	Commits         prometheus.Counter
	Aborts          prometheus.Counter
	DeadlockVictims prometheus.Counter
	ActiveTx        prometheus.Gauge
	SitesDown       prometheus.Gauge
}

// NewMetrics builds a fresh, unregistered Metrics bundle.
func NewMetrics() *Metrics {
	return &Metrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repcrec_transactions_committed_total",
			Help: "Total number of transactions (RW and RO) that committed.",
		}),
		Aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repcrec_transactions_aborted_total",
			Help: "Total number of transactions aborted, for any reason.",
		}),
		DeadlockVictims: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "repcrec_deadlock_victims_total",
			Help: "Total number of transactions aborted as a deadlock victim.",
		}),
		ActiveTx: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "repcrec_active_transactions",
			Help: "Number of transactions currently active.",
		}),
		SitesDown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "repcrec_sites_unavailable",
			Help: "Number of sites currently unavailable.",
		}),
	}
}

// MustRegister registers every instrument against reg.
func (m *Metrics) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(m.Commits, m.Aborts, m.DeadlockVictims, m.ActiveTx, m.SitesDown)
}

// refreshGauges recomputes the gauges from live engine state. Called after
// every admitted instruction; counters are updated inline where the
// event occurs instead.
func (e *Engine) refreshGauges() {
	if e.metrics == nil {
		return
	}
	active := 0
	for _, tx := range e.txMgr.txs {
		if tx.state == Active {
			active++
		}
	}
	e.metrics.ActiveTx.Set(float64(active))
	e.metrics.SitesDown.Set(float64(e.siteMgr.UnavailableSiteCount()))
}
