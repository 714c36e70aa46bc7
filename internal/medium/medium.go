// Package medium implements the wireless medium: link-quality computation
// between two positions, viability gating, and unicast/broadcast transmit
// scheduling. Per DESIGN.md's Open Question decisions, broadcast viability
// is recomputed per-recipient at delivery time (to model topology churn);
// unicast viability is decided once, at send time, per spec.md §4.5's
// literal wording.
package medium

import (
	"math"

	"github.com/malbeclabs/rplsim/internal/node"
	"github.com/malbeclabs/rplsim/internal/pdu"
	"github.com/malbeclabs/rplsim/internal/registry"
	"github.com/malbeclabs/rplsim/internal/scheduler"
	"github.com/malbeclabs/rplsim/internal/simclock"
	"github.com/malbeclabs/rplsim/internal/simevent"
)

// TransmitMode selects how a frame reaches its recipients.
type TransmitMode uint8

const (
	Unicast TransmitMode = iota
	Broadcast
)

// LinkQuality computes tx_power(src) * max(0, (thresh-distance)/thresh)
// using true Euclidean distance. The reference simulator's
// rs_system_get_link_quality computed the y-axis term as
// phy_node_get_x(dst_node) - phy_node_get_x(dst_node) — a copy-paste bug
// that always zeroed the y contribution. This is deliberately not
// reproduced; see DESIGN.md.
func LinkQuality(src, dst node.Position, txPower, threshDist float64) float64 {
	if threshDist <= 0 {
		return 0
	}
	dx := src.X - dst.X
	dy := src.Y - dst.Y
	distance := math.Sqrt(dx*dx + dy*dy)
	factor := (threshDist - distance) / threshDist
	if factor < 0 {
		factor = 0
	}
	return txPower * factor
}

// Viable reports whether quality clears the configured threshold.
func Viable(quality, threshQuality float64) bool {
	return quality >= threshQuality
}

// Config carries the medium's static parameters, drawn from
// internal/simconfig.
type Config struct {
	NoLinkDistThresh    float64
	NoLinkQualityThresh float64
	TransmissionTime    simclock.Time
}

// Medium schedules frame deliveries across the wireless channel. It owns
// the sys_event_pdu_receive registration (a System-category event per
// spec.md §4.2) so the scheduler's worker can hand drained entries directly
// to World's receive handler without going through a node's dispatcher for
// the "pull frame off the medium" step itself — only the protocol hooks
// that follow run per-node-serialized.
type Medium struct {
	cfg       Config
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	events    *simevent.Registry

	ReceiveEventID simevent.ID
}

// New constructs a Medium and registers its system event.
func New(cfg Config, reg *registry.Registry, sched *scheduler.Scheduler, events *simevent.Registry) *Medium {
	id := events.MustID("sys_event_pdu_receive", simevent.System)
	return &Medium{cfg: cfg, registry: reg, scheduler: sched, events: events, ReceiveEventID: id}
}

// DeliveryPayload is carried as the scheduled entry's Payload2: the frame in
// flight, tagged with the mode so the receive handler knows whether to
// re-check viability (broadcast) or trust the send-time check (unicast).
type DeliveryPayload struct {
	Frame *pdu.PhyPdu
	Mode  TransmitMode
}

// Send transmits frame from src. For Unicast, dst must be non-nil and
// viability is decided now: a non-viable link silently drops the frame
// (the caller is expected to count the drop). For Broadcast, dst is
// ignored and every other alive node in the registry is scheduled a
// deep-copied frame whose viability is re-evaluated at delivery time.
// Returns true if at least one delivery was scheduled.
func (m *Medium) Send(src, dst *node.Node, frame *pdu.PhyPdu, mode TransmitMode) bool {
	switch mode {
	case Unicast:
		if dst == nil || !src.Alive() || !dst.Alive() {
			return false
		}
		q := LinkQuality(src.Position(), dst.Position(), src.TxPower(), m.cfg.NoLinkDistThresh)
		if !Viable(q, m.cfg.NoLinkQualityThresh) {
			metricLinkDrops.WithLabelValues("unicast").Inc()
			return false
		}
		m.scheduler.Schedule(dst.Handle, m.ReceiveEventID, src.Handle, &DeliveryPayload{Frame: frame, Mode: Unicast}, m.cfg.TransmissionTime)
		return true

	case Broadcast:
		sent := false
		for _, n := range m.registry.ListSnapshot() {
			if n.Handle == src.Handle || !n.Alive() {
				continue
			}
			cp := frame.Duplicate()
			m.scheduler.Schedule(n.Handle, m.ReceiveEventID, src.Handle, &DeliveryPayload{Frame: cp, Mode: Broadcast}, m.cfg.TransmissionTime)
			sent = true
		}
		return sent
	}
	return false
}

// ViableNow re-checks link viability between src and dst at the current
// positions/alive state, used by the receive handler for broadcast
// deliveries whose viability was deferred to delivery time.
func (m *Medium) ViableNow(src, dst *node.Node) bool {
	if !src.Alive() || !dst.Alive() {
		return false
	}
	q := LinkQuality(src.Position(), dst.Position(), src.TxPower(), m.cfg.NoLinkDistThresh)
	return Viable(q, m.cfg.NoLinkQualityThresh)
}
