package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBucketsDrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rplsim_scheduler_buckets_drained_total",
		Help: "Number of time buckets drained by the scheduler worker.",
	})
	metricEventsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rplsim_scheduler_events_dispatched_total",
		Help: "Number of scheduled entries handed to a dispatch handler.",
	})
	metricEventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rplsim_scheduler_events_failed_total",
		Help: "Number of dispatched entries whose handler returned failure.",
	})
)
