package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Workflow metrics. Registered once via promauto; label cardinality is bounded
// by the closed kind/action enums.
var (
	// TransitionsApplied counts successfully committed workflow transitions.
	TransitionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Successfully applied workflow transitions by entity kind and audit action.",
	}, []string{"kind", "action"})

	// TransitionConflicts counts optimistic-concurrency losers. A spike here
	// means reviewers are racing on the same entities.
	TransitionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transition_conflicts_total",
		Help: "Transitions rejected because the entity version advanced underneath them.",
	}, []string{"kind"})

	// TransitionRejections counts business rejections by error code.
	TransitionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transition_rejections_total",
		Help: "Transitions refused by the state machine, by error code.",
	}, []string{"kind", "code"})

	// ChangeEventsPublished counts dirty-signal events pushed to Redis.
	ChangeEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_change_events_published_total",
		Help: "Dirty-signal change events published per entity kind.",
	}, []string{"kind"})

	// RedisErrors counts failed Redis commands observed by the cache hook.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Redis command failures by command name.",
	}, []string{"command"})
)

// InitMetrics creates the Prometheus HTTP middleware for the given service name.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}
