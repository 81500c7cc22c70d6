package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	positionMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "organigramm",
		Subsystem: "positions",
		Name:      "mutations_total",
		Help:      "Position mutations broken down by operation and result.",
	}, []string{"op", "result"})

	versionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "organigramm",
		Subsystem: "positions",
		Name:      "version_conflicts_total",
		Help:      "Updates rejected because the stored version moved on.",
	})

	positionCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "organigramm",
		Subsystem: "positions",
		Name:      "cache_lookups_total",
		Help:      "Position list cache lookups by result.",
	}, []string{"result"})
)

func observeMutation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	positionMutations.WithLabelValues(op, result).Inc()
}
