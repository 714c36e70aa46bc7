// Package world implements the simulator's context object: the explicit,
// non-singleton home for a run's clock, event registry, scheduler, node
// registry, wireless medium, and configuration. Per the REDESIGN FLAGS, this
// replaces the reference simulator's process-wide global — callers hold
// their own *World, which lets tests run several simulations in parallel
// without sharing state.
package world

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/rplsim/internal/medium"
	"github.com/malbeclabs/rplsim/internal/neighbor"
	"github.com/malbeclabs/rplsim/internal/node"
	"github.com/malbeclabs/rplsim/internal/pdu"
	"github.com/malbeclabs/rplsim/internal/registry"
	"github.com/malbeclabs/rplsim/internal/scheduler"
	"github.com/malbeclabs/rplsim/internal/simclock"
	"github.com/malbeclabs/rplsim/internal/simconfig"
	"github.com/malbeclabs/rplsim/internal/simerrors"
	"github.com/malbeclabs/rplsim/internal/simevent"
)

// dioIntervalFactor and sweep cadences are internal scheduling details, not
// recognized configuration options (spec.md §6 names none for them): DIO
// re-advertisement runs an order of magnitude slower than a single
// transmission, and the two sweeps reuse the relevant timeout as their own
// period so a just-missed expiry is caught within one more timeout window.
const dioIntervalFactor = 10

// Well-known node-dispatched event names, registered once per World.
const (
	eventNodeWake             = "event_node_wake"
	eventNodeKill             = "event_node_kill"
	eventDioInterval          = "event_dio_interval"
	eventNeighborCacheTimeout = "event_neighbor_cache_timeout_check"
	eventPduSendTimeout       = "event_pdu_send_timeout_check"
)

// World ties together every package implementing one piece of spec.md §4
// into the object a host (CLI, HTTP control surface, test) drives. It is
// the "nodes → events → schedules" lock order's home: Registry guards
// "nodes", simevent.Registry guards "events", and scheduler.Scheduler
// guards "schedules" — each as its own narrow, non-recursive mutex (per the
// REDESIGN FLAGS) rather than one re-entrant lock spanning all three. No
// World method ever holds two of those locks at once; composite operations
// like RemoveNode call each guarded component in turn, releasing one lock
// before the next is taken.
type World struct {
	log    *slog.Logger
	Config *simconfig.Config

	Clock     *simclock.Clock
	Events    *simevent.Registry
	Scheduler *scheduler.Scheduler
	Registry  *registry.Registry
	Medium    *medium.Medium

	Pipeline *pdu.Pipeline

	wakeID   simevent.ID
	killID   simevent.ID
	dioID    simevent.ID
	nbrID    simevent.ID
	queueID  simevent.ID

	rootCtx    context.Context
	rootCancel context.CancelFunc

	workerCancel context.CancelFunc
}

// New constructs a World from cfg. realTime selects whether the scheduler
// sleeps between buckets to track wall-clock time (production) or drains as
// fast as possible (deterministic tests).
func New(cfg *simconfig.Config, log *slog.Logger, realTime bool) *World {
	v := cfg.Snapshot()

	clock := simclock.New(v.DeterministicRandom, v.SimulationSecond)
	events := simevent.New()
	reg := registry.New()
	sched := scheduler.New(log, clock, events, realTime)
	med := medium.New(medium.Config{
		NoLinkDistThresh:    v.NoLinkDistThresh,
		NoLinkQualityThresh: v.NoLinkQualityThresh,
		TransmissionTime:    simclock.Time(v.TransmissionTime),
	}, reg, sched, events)

	rootCtx, rootCancel := context.WithCancel(context.Background())

	w := &World{
		log:        log,
		Config:     cfg,
		Clock:      clock,
		Events:     events,
		Scheduler:  sched,
		Registry:   reg,
		Medium:     med,
		Pipeline:   pdu.NewPipeline(pdu.NopHooks{}),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
	}

	w.wakeID = events.MustID(eventNodeWake, simevent.Node)
	w.killID = events.MustID(eventNodeKill, simevent.Node)
	w.dioID = events.MustID(eventDioInterval, simevent.Node)
	w.nbrID = events.MustID(eventNeighborCacheTimeout, simevent.Node)
	w.queueID = events.MustID(eventPduSendTimeout, simevent.Node)

	return w
}

// SetHooks installs the external RPL layer's hook implementation. The core
// never supplies its own domain logic above ICMP; until this is called,
// every hook accepts (pdu.NopHooks).
func (w *World) SetHooks(h pdu.Hooks) { w.Pipeline.Hooks = h }

// SetMangler installs the medium's per-frame error-injection hook.
func (w *World) SetMangler(m pdu.Mangler) { w.Pipeline.Mangler = m }

// Destroy tears the world down: every node dispatcher goroutine and the
// scheduler worker (if still running) are stopped, and every node's
// neighbor-cache janitor is stopped. Per spec.md §7, only world
// create/destroy failures are meant to abort the simulator; Destroy itself
// cannot fail.
func (w *World) Destroy() {
	if w.workerCancel != nil {
		w.workerCancel()
	}
	for _, n := range w.Registry.ListSnapshot() {
		n.Ip.Neighbors.Stop()
	}
	w.rootCancel()
}

// AddNode constructs a node from cfg, registers it, starts its dispatcher
// goroutine, and — when auto_wake_nodes is set — schedules its wake event.
func (w *World) AddNode(cfg node.Config) (*node.Node, error) {
	if cfg.Neighbors == nil {
		v := w.Config.Snapshot()
		cfg.Neighbors = neighbor.New(simclock.Time(v.IpNeighborTimeout), v.SimulationSecond)
	}
	n := node.New(cfg, w.log)
	if err := w.Registry.Add(n); err != nil {
		return nil, err
	}
	go n.Dispatcher.Run(w.rootCtx)

	if w.Config.Snapshot().AutoWakeNodes {
		w.Scheduler.Schedule(n.Handle, w.wakeID, nil, nil, 0)
	}
	return n, nil
}

// RemoveNode runs the kill sequence for n: cancel every pending event
// targeting it, drop every route anywhere that names it as next-hop, mark
// it not alive, and remove it from the registry. Unlike wake (which flows
// through the scheduler so auto_wake_nodes can delay it), removal is a
// control-API call the host expects to take effect immediately regardless
// of pause state, so it runs synchronously rather than via a scheduled
// event_node_kill — see DESIGN.md.
func (w *World) RemoveNode(ctx context.Context, n *node.Node) error {
	n.Dispatcher.Execute(ctx, eventNodeKill, func(ctx context.Context) bool {
		w.Scheduler.Cancel(n.Handle, nil, scheduler.Any, scheduler.Any, nil)
		n.SetAlive(false)
		return true
	}, true)

	w.Registry.DropRoutesReferencing(n)
	if err := w.Registry.Remove(n); err != nil {
		return err
	}
	n.Ip.Neighbors.Stop()
	return nil
}

// Start spawns the scheduler's worker goroutine. When paused is true the
// worker accepts scheduling immediately but drains no buckets until Resume
// or Step is called.
func (w *World) Start(paused bool) {
	ctx, cancel := context.WithCancel(w.rootCtx)
	w.workerCancel = cancel
	if paused {
		w.Scheduler.Pause()
	}
	go func() {
		if err := w.Scheduler.Run(ctx, w.dispatch); err != nil {
			w.log.Error("world: scheduler run exited with error", "err", err)
		}
	}()
}

// Stop signals the worker goroutine to exit.
func (w *World) Stop() {
	if w.workerCancel != nil {
		w.workerCancel()
	}
}

// Pause halts bucket draining without affecting scheduling.
func (w *World) Pause() { w.Scheduler.Pause() }

// Resume lifts a prior Pause. Not named explicitly in spec.md §6's control
// table, but required for pause to be anything but one-way.
func (w *World) Resume() { w.Scheduler.Resume() }

// Step allows exactly one bucket to drain, then re-pauses.
func (w *World) Step() { w.Scheduler.Step() }

// Schedule is the low-level timer access exposed on the control surface.
func (w *World) Schedule(n node.Handle, eventID simevent.ID, p1, p2 any, delay simclock.Time) {
	w.Scheduler.Schedule(n, eventID, p1, p2, delay)
}

// Cancel is the low-level timer access exposed on the control surface.
func (w *World) Cancel(n node.Handle, eventID *simevent.ID, p1, p2 any, at *simclock.Time) int {
	return w.Scheduler.Cancel(n, eventID, p1, p2, at)
}

// GetLinkQuality is the control surface's inspection call.
func (w *World) GetLinkQuality(a, b *node.Node) float64 {
	return medium.LinkQuality(a.Position(), b.Position(), a.TxPower(), w.Config.Snapshot().NoLinkDistThresh)
}

// SimTimeToString is the control surface's time-rendering call.
func (w *World) SimTimeToString(t simclock.Time, withMillis bool) string {
	return w.Clock.SimTimeToString(t, withMillis)
}

// Send resolves a next hop for dstIP by longest-prefix match over src's
// routes, builds the PDU chain for msg, and hands it to the medium. It runs
// on src's own dispatcher so it serializes against concurrent receives and
// sends targeting src.
func (w *World) Send(ctx context.Context, src *node.Node, dstIP string, msg pdu.RplMessage) error {
	var sendErr error
	src.Dispatcher.Execute(ctx, "send", func(ctx context.Context) bool {
		sendErr = w.sendLocked(ctx, src, dstIP, msg)
		return sendErr == nil
	}, true)
	return sendErr
}

func (w *World) sendLocked(ctx context.Context, src *node.Node, dstIP string, msg pdu.RplMessage) error {
	route, err := src.Ip.Routes.FindNextHop(dstIP)
	if err != nil {
		return simerrors.New(simerrors.Route, "world.Send", err)
	}
	nextHop, ok := route.NextHop.(node.Handle)
	if !ok {
		return simerrors.New(simerrors.Route, "world.Send", simerrors.ErrNoNextHop)
	}
	nextNode, ok := w.Registry.FindByHandle(nextHop)
	if !ok || !nextNode.Alive() {
		return simerrors.New(simerrors.Route, "world.Send", simerrors.ErrNoNextHop)
	}

	now := w.Clock.Now()
	src.Ip.Neighbors.Refresh(nextHop, now)

	wasIdle := !src.Ip.Busy()
	mode := w.transmitMode()
	enqueued := src.Ip.Enqueue(int64(now), func() {
		w.transmit(ctx, src, nextNode, dstIP, msg, mode)
	})
	if !enqueued {
		metricSendDrops.WithLabelValues("queue_full").Inc()
		return simerrors.New(simerrors.QueueFull, "world.Send", fmt.Errorf("ip queue full for node %s", src.Name()))
	}

	// The busy/idle flag models local contention, not wire delay (which the
	// scheduler already enforces via transmission_time), so a newly busy
	// queue drains in full immediately rather than one entry per timer tick.
	if wasIdle {
		for src.Ip.Busy() {
			src.Ip.Drain()
		}
	}
	return nil
}

func (w *World) transmitMode() medium.TransmitMode {
	if w.Config.Snapshot().PhyTransmitMode == simconfig.TransmitBroadcast {
		return medium.Broadcast
	}
	return medium.Unicast
}

func (w *World) transmit(ctx context.Context, src, nextNode *node.Node, dstIP string, msg pdu.RplMessage, mode medium.TransmitMode) {
	frame, err := w.Pipeline.Send(ctx, src.Handle, src.MAC(), nextNode.MAC(), src.IP(), dstIP, msg)
	if err != nil {
		w.log.Warn("world: send rejected by hook", "node", src.Name(), "err", err)
		metricSendDrops.WithLabelValues("hook_rejection").Inc()
		return
	}
	if !w.Medium.Send(src, nextNode, frame, mode) {
		metricSendDrops.WithLabelValues("link").Inc()
	}
}

// dispatch is the scheduler's Handler: it categorizes the drained entry and
// routes it either to the system-event path (the medium's frame delivery)
// or to the target node's per-node dispatcher.
func (w *World) dispatch(ctx context.Context, e scheduler.Entry) bool {
	cat, ok := w.Events.Category(e.EventID)
	if !ok {
		// Unknown event_id: a fatal diagnostic per spec.md §7, but the
		// simulation does not stop over it.
		w.log.Error("world: dispatched unknown event id", "event_id", e.EventID)
		return false
	}

	switch cat {
	case simevent.System:
		return w.handleSystemEvent(ctx, e)
	case simevent.Node:
		h, ok := e.Node.(node.Handle)
		if !ok {
			return false
		}
		n, ok := w.Registry.FindByHandle(h)
		if !ok {
			// The node was killed before this event fired; dropping it is
			// exactly what RemoveNode's event cancellation is meant to
			// prevent in the common case, but a race against Stop/Step is
			// harmless here.
			return false
		}
		name, _, _ := w.Events.Lookup(e.EventID)
		return n.Dispatcher.Execute(ctx, name, func(ctx context.Context) bool {
			return w.runNodeEvent(ctx, n, e)
		}, true)
	default:
		return false
	}
}

func (w *World) handleSystemEvent(ctx context.Context, e scheduler.Entry) bool {
	if e.EventID != w.Medium.ReceiveEventID {
		w.log.Error("world: unrecognized system event", "event_id", e.EventID)
		return false
	}
	dstHandle, ok := e.Node.(node.Handle)
	if !ok {
		return false
	}
	dst, ok := w.Registry.FindByHandle(dstHandle)
	if !ok {
		return false
	}
	srcHandle, ok := e.Payload1.(node.Handle)
	if !ok {
		return false
	}
	src, ok := w.Registry.FindByHandle(srcHandle)
	if !ok {
		// Source was killed mid-flight; the frame has nowhere valid to have
		// come from, so it is dropped.
		return false
	}
	delivery, ok := e.Payload2.(*medium.DeliveryPayload)
	if !ok {
		return false
	}
	if delivery.Mode == medium.Broadcast && !w.Medium.ViableNow(src, dst) {
		metricSendDrops.WithLabelValues("link").Inc()
		return false
	}

	return dst.Dispatcher.Execute(ctx, "pdu_receive", func(ctx context.Context) bool {
		dst.Ip.Neighbors.Refresh(srcHandle, w.Clock.Now())
		if err := w.Pipeline.Receive(ctx, dst.Handle, delivery.Frame); err != nil {
			w.log.Debug("world: receive pipeline dropped frame", "node", dst.Name(), "err", err)
			return false
		}
		return true
	}, true)
}

// runNodeEvent runs inside n's own dispatcher job, so it is already
// serialized against every other handler for n.
func (w *World) runNodeEvent(ctx context.Context, n *node.Node, e scheduler.Entry) bool {
	switch e.EventID {
	case w.wakeID:
		return w.onWake(n)
	case w.killID:
		n.SetAlive(false)
		return true
	case w.dioID:
		return w.onDioInterval(n)
	case w.nbrID:
		return w.onNeighborSweep(n)
	case w.queueID:
		return w.onQueueSweep(n)
	default:
		w.log.Error("world: no handler for node event", "event_id", e.EventID, "node", n.Name())
		return false
	}
}

func (w *World) onWake(n *node.Node) bool {
	n.SetAlive(true)
	v := w.Config.Snapshot()
	dioInterval := simclock.Time(v.TransmissionTime) * dioIntervalFactor
	w.Scheduler.Schedule(n.Handle, w.dioID, nil, nil, dioInterval)
	w.Scheduler.Schedule(n.Handle, w.nbrID, nil, nil, simclock.Time(v.IpNeighborTimeout))
	w.Scheduler.Schedule(n.Handle, w.queueID, nil, nil, simclock.Time(v.IpPduTimeout))
	return true
}

func (w *World) onDioInterval(n *node.Node) bool {
	if !n.Alive() {
		return true
	}
	v := w.Config.Snapshot()
	w.Scheduler.Schedule(n.Handle, w.dioID, nil, nil, simclock.Time(v.TransmissionTime)*dioIntervalFactor)
	return true
}

func (w *World) onNeighborSweep(n *node.Node) bool {
	if !n.Alive() {
		return true
	}
	v := w.Config.Snapshot()
	n.Ip.Neighbors.ExpireOlderThan(w.Clock.Now(), simclock.Time(v.IpNeighborTimeout))
	w.Scheduler.Schedule(n.Handle, w.nbrID, nil, nil, simclock.Time(v.IpNeighborTimeout))
	return true
}

func (w *World) onQueueSweep(n *node.Node) bool {
	if !n.Alive() {
		return true
	}
	v := w.Config.Snapshot()
	n.Ip.ExpireOlderThan(int64(w.Clock.Now()), v.IpPduTimeout)
	w.Scheduler.Schedule(n.Handle, w.queueID, nil, nil, simclock.Time(v.IpPduTimeout))
	return true
}
