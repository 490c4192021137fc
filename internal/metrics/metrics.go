package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	taskMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "task_mutations_total",
			Help:      "Task mutations by operation.",
		},
		[]string{"operation"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "sync_runs_total",
			Help:      "Completed sync runs by result.",
		},
		[]string{"result"},
	)

	syncedItems = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "sync_items_synced_total",
			Help:      "Queue items confirmed synced by the remote.",
		},
	)

	failedItems = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tasksync",
			Name:      "sync_items_failed_total",
			Help:      "Queue items that failed a sync attempt.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, taskMutations, syncRuns, syncedItems, failedItems)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncTaskMutation counts a create/update/delete against the local store.
func IncTaskMutation(operation string) {
	taskMutations.WithLabelValues(operation).Inc()
}

// IncSyncRun counts a finished sync run.
func IncSyncRun(success bool) {
	result := "success"
	if !success {
		result = "partial_failure"
	}
	syncRuns.WithLabelValues(result).Inc()
}

func AddSyncedItems(n int) {
	if n > 0 {
		syncedItems.Add(float64(n))
	}
}

func AddFailedItems(n int) {
	if n > 0 {
		failedItems.Add(float64(n))
	}
}
