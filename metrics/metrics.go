// Package metrics exposes Prometheus counters for graph mutations and
// playbook pours. Counters are registered on the default registerer;
// the embedding service decides whether and where to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for mutation counters.
const (
	ResultOK        = "ok"
	ResultDuplicate = "duplicate"
	ResultCycle     = "cycle"
	ResultRejected  = "rejected"
	ResultError     = "error"
)

var (
	// DependencyAdds counts addDependency calls by outcome.
	DependencyAdds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_dependency_adds_total",
		Help: "Dependency edge insertions by outcome.",
	}, []string{"type", "result"})

	// DependencyRemoves counts removeDependency calls by outcome.
	DependencyRemoves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_dependency_removes_total",
		Help: "Dependency edge removals by outcome.",
	}, []string{"type", "result"})

	// CycleChecks counts reachability searches run on the write path.
	CycleChecks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_cycle_checks_total",
		Help: "Reachability searches performed before edge insertion.",
	})

	// Pours counts playbook instantiations by outcome.
	Pours = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_pours_total",
		Help: "Playbook pours by outcome.",
	}, []string{"result"})

	// StepsSkipped counts playbook steps excluded by their condition.
	StepsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_pour_steps_skipped_total",
		Help: "Playbook steps skipped by condition during pour.",
	})
)
