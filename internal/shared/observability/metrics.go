package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"modweave/internal/shared/util"
)

// Metrics definitions
var (
	ExpansionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "modweave_expansion_seconds",
		Help:    "Time spent flattening an assembly into query records.",
		Buckets: prometheus.DefBuckets,
	})

	ExpansionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modweave_expansion_cache_hits_total",
		Help: "Total number of assembly expansions served from the cache.",
	})

	QueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modweave_queries_total",
		Help: "Total number of query evaluations (memoized reruns excluded).",
	})

	RewriteEditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modweave_rewrite_edits_total",
		Help: "Total number of reference edits applied, by replacement kind.",
	}, []string{"kind"})

	RelinkPolicyCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modweave_relink_policy_calls_total",
		Help: "Total number of leaf types handed to a relink policy.",
	}, []string{"outcome"})

	HooksEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modweave_hooks_emitted_total",
		Help: "Total number of hook fields emitted, by position.",
	}, []string{"position"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modweave_stage_seconds",
		Help:    "Time spent applying one lifecycle stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	UnitsInvokedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modweave_units_invoked_total",
		Help: "Total number of modification units invoked, by stage.",
	}, []string{"stage"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modweave_runs_total",
		Help: "Total number of pipeline runs, by final status.",
	}, []string{"status"})
)

// WriteTextfile dumps the default registry in the text exposition format, for
// node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if err := util.EnsureParentDir(path); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
