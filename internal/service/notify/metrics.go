package notify

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK         = "ok"
	outcomeFailed     = "failed"
	outcomeSkipped    = "skipped"
	outcomeSuppressed = "suppressed"
)

var tasks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ecolisting_notify_tasks_total",
		Help: "Best-effort notification tasks by task and outcome.",
	},
	[]string{"task", "outcome"},
)

func init() {
	prometheus.MustRegister(tasks)
}

func observe(task string, err error) {
	if err != nil {
		tasks.WithLabelValues(task, outcomeFailed).Inc()
		return
	}
	tasks.WithLabelValues(task, outcomeOK).Inc()
}
