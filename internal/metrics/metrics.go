package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesDispatched counts outbound message attempts by final status.
	MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_messages_dispatched_total",
		Help: "Outbound message dispatch attempts partitioned by result status.",
	}, []string{"status"})

	// WebhooksReceived counts inbound callbacks by outcome.
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhooks_received_total",
		Help: "Inbound webhook callbacks partitioned by outcome.",
	}, []string{"outcome"})

	// TasksCompleted counts task executions by terminal outcome.
	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_tasks_completed_total",
		Help: "Task queue executions partitioned by outcome.",
	}, []string{"outcome"})
)

// Sizer reports how many tasks are waiting to run.
type Sizer interface {
	PendingTasks() (int64, error)
}

// RegisterQueueSize exposes the task queue depth as a gauge.
func RegisterQueueSize(s Sizer) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gateway_task_queue_size",
		Help: "Number of tasks in pending or retrying state.",
	}, func() float64 {
		n, err := s.PendingTasks()
		if err != nil {
			return 0
		}
		return float64(n)
	})
}
