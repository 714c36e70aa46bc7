package world

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricSendDrops = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rplsim_world_send_drops_total",
	Help: "Outbound sends dropped before or during transmission, by reason.",
}, []string{"reason"})
