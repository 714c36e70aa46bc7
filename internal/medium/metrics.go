package medium

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricLinkDrops = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rplsim_medium_link_drops_total",
	Help: "Frames dropped because the link was not viable, by transmit mode.",
}, []string{"mode"})
