package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	suggestionRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggestion",
			Name:      "requests_total",
			Help:      "已受理的建议生成请求数。",
		},
	)

	suggestionReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggestion",
			Name:      "reconciliations_total",
			Help:      "生成结果回写次数，按结果分类。",
		},
		[]string{"outcome"},
	)
)

// SuggestionRequested 记录一次被受理的生成请求。
func SuggestionRequested() {
	suggestionRequestsTotal.Inc()
}

// SuggestionReconciled 记录一次回写结果（applied/stale/missing/failed）。
func SuggestionReconciled(outcome string) {
	suggestionReconciliationsTotal.WithLabelValues(outcome).Inc()
}
