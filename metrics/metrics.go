// Package metrics collects counters and histograms for Paxos rounds
// and lock server operations, backed by Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every counter/histogram this module exposes. One
// Registry is created per process and threaded explicitly into paxos,
// lockserver and lockclient constructors; there is no package-level
// global state.
type Registry struct {
	reg *prometheus.Registry

	PaxosRounds    *prometheus.CounterVec // by phase: prepare/accept/decide
	PaxosRejected  prometheus.Counter     // ballot rejections seen by a proposer
	PaxosRoundTime *prometheus.HistogramVec

	LockAcquires  *prometheus.CounterVec // by result: reply status name (OK, RETRY, ...), or "duplicate"/"stale" for server-side dedup hits
	LockReleases  *prometheus.CounterVec
	RevokesSent   prometheus.Counter
	RetriesSent   prometheus.Counter
	QuorumFailure prometheus.Counter
}

// New builds a fresh, independent registry (tests each get their own;
// cmd/lockd gets exactly one, exposed over /metrics).
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		PaxosRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yfslock_paxos_rounds_total",
			Help: "Paxos proposer rounds by phase.",
		}, []string{"phase"}),
		PaxosRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yfslock_paxos_ballot_rejections_total",
			Help: "Number of proposals rejected due to a stale ballot number.",
		}),
		PaxosRoundTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "yfslock_paxos_round_seconds",
			Help: "Time spent in Paxos proposer runs.",
		}, []string{"phase"}),
		LockAcquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yfslock_lock_acquires_total",
			Help: "Lock server acquire results.",
		}, []string{"result"}),
		LockReleases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yfslock_lock_releases_total",
			Help: "Lock server release results.",
		}, []string{"result"}),
		RevokesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yfslock_revokes_sent_total",
			Help: "Revoke RPCs dispatched by the lock server.",
		}),
		RetriesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yfslock_retries_sent_total",
			Help: "Retry RPCs dispatched by the lock server.",
		}),
		QuorumFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yfslock_paxos_quorum_failures_total",
			Help: "Proposer runs that failed to reach a majority.",
		}),
	}
	reg.MustRegister(
		r.PaxosRounds, r.PaxosRejected, r.PaxosRoundTime,
		r.LockAcquires, r.LockReleases, r.RevokesSent, r.RetriesSent, r.QuorumFailure,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Timer returns a function that records elapsed time into the named
// histogram when called: `defer m.Timer(h, "prepare")()`.
func (r *Registry) Timer(h *prometheus.HistogramVec, phase string) func() {
	start := time.Now()
	return func() { h.WithLabelValues(phase).Observe(time.Since(start).Seconds()) }
}
