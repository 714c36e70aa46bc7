package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricJobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rplsim_dispatch_jobs_enqueued_total",
		Help: "Number of jobs enqueued onto a node's dispatcher, by job name.",
	}, []string{"job"})
	metricJobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rplsim_dispatch_jobs_dropped_total",
		Help: "Number of async jobs dropped because a node's queue was full, by job name.",
	}, []string{"job"})
)
