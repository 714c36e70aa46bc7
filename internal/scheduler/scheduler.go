// Package scheduler implements the time-bucketed event queue and the single
// worker loop that drains it. Entries that share a fire time live in one
// bucket and fire in FIFO (insertion) order; buckets are kept in a list
// ordered by strictly increasing time.
package scheduler

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/malbeclabs/rplsim/internal/simclock"
	"github.com/malbeclabs/rplsim/internal/simevent"
)

// NodeRef identifies the event's target node. The scheduler never dereferences
// it; it is only compared for equality (cancellation matching and per-node
// FIFO bookkeeping), so any comparable node handle type works here.
type NodeRef any

// Any is the wildcard sentinel usable as payload1/payload2 in Cancel to match
// any value at that position.
var Any = struct{ wildcard byte }{}

// Entry is one scheduled occurrence: fire at Time for Node, running EventID
// with the two opaque payloads.
type Entry struct {
	Node     NodeRef
	EventID  simevent.ID
	Payload1 any
	Payload2 any
	Time     simclock.Time

	seq uint64 // global insertion sequence, broken out for diagnostics only
}

// Handler runs one drained entry. It returns false on failure; the scheduler
// logs and continues, per spec.md's "logged and locally absorbed" policy.
type Handler func(ctx context.Context, e Entry) bool

type bucket struct {
	time    simclock.Time
	entries *list.List // of *Entry
}

// Scheduler owns the bucket chain and the clock it advances. The dispatch
// Handler passed to Run is invoked for every drained entry; World wires this
// to route Node-category events to the per-node dispatcher and System-category
// events to a direct call, as simevent.Registry.Category reports.
type Scheduler struct {
	log    *slog.Logger
	clock  *simclock.Clock
	events *simevent.Registry

	mu      sync.Mutex // guards buckets and seq; the "schedules" lock
	buckets *list.List // of *bucket, ordered by strictly increasing time
	seq     uint64
	count   int

	realTime bool

	pauseMu sync.Mutex
	paused  bool
	step    bool
	started bool
}

// New constructs a Scheduler bound to clock and the event registry used to
// categorize drained entries. realTime selects whether the worker sleeps
// between buckets to track wall-clock time, or drains as fast as possible.
func New(log *slog.Logger, clock *simclock.Clock, events *simevent.Registry, realTime bool) *Scheduler {
	return &Scheduler{
		log:      log,
		clock:    clock,
		events:   events,
		buckets:  list.New(),
		realTime: realTime,
	}
}

// Schedule inserts an entry at fire_time = now + delay. delay must be >= 0.
func (s *Scheduler) Schedule(node NodeRef, eventID simevent.ID, p1, p2 any, delay simclock.Time) {
	if delay < 0 {
		delay = 0
	}
	fireAt := s.clock.Now() + delay

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e := &Entry{Node: node, EventID: eventID, Payload1: p1, Payload2: p2, Time: fireAt, seq: s.seq}

	for el := s.buckets.Front(); el != nil; el = el.Next() {
		b := el.Value.(*bucket)
		if b.time == fireAt {
			b.entries.PushBack(e)
			s.count++
			return
		}
		if b.time > fireAt {
			nb := &bucket{time: fireAt, entries: list.New()}
			nb.entries.PushBack(e)
			s.buckets.InsertBefore(nb, el)
			s.count++
			return
		}
	}
	nb := &bucket{time: fireAt, entries: list.New()}
	nb.entries.PushBack(e)
	s.buckets.PushBack(nb)
	s.count++
}

// Cancel removes entries matching node, eventID, p1, p2 and time. Any
// parameter may be the wildcard (nil for node/eventID/time as *type, Any for
// p1/p2); at least one field must be concrete. Buckets left empty are
// removed.
func (s *Scheduler) Cancel(node NodeRef, eventID *simevent.ID, p1, p2 any, at *simclock.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	var next *list.Element
	for el := s.buckets.Front(); el != nil; el = next {
		next = el.Next()
		b := el.Value.(*bucket)
		if at != nil && b.time != *at {
			continue
		}
		var nextEntry *list.Element
		for eel := b.entries.Front(); eel != nil; eel = nextEntry {
			nextEntry = eel.Next()
			e := eel.Value.(*Entry)
			if !matches(e, node, eventID, p1, p2) {
				continue
			}
			b.entries.Remove(eel)
			s.count--
			removed++
		}
		if b.entries.Len() == 0 {
			s.buckets.Remove(el)
		}
	}
	return removed
}

func matches(e *Entry, node NodeRef, eventID *simevent.ID, p1, p2 any) bool {
	if node != nil && e.Node != node {
		return false
	}
	if eventID != nil && e.EventID != *eventID {
		return false
	}
	if p1 != Any && e.Payload1 != p1 {
		return false
	}
	if p2 != Any && e.Payload2 != p2 {
		return false
	}
	return true
}

// Len returns the total number of pending entries across all buckets.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// BucketCount returns the number of non-empty buckets currently pending.
func (s *Scheduler) BucketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buckets.Len()
}

// Pause halts bucket draining while still accepting Schedule/Cancel calls.
func (s *Scheduler) Pause() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	s.paused = true
}

// Resume lifts a Pause.
func (s *Scheduler) Resume() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	s.paused = false
}

// Step allows exactly one bucket to drain, then re-pauses.
func (s *Scheduler) Step() {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	s.paused = true
	s.step = true
}

// shouldDrain reports whether the worker may drain now, and whether that
// permission came from consuming a pending Step.
func (s *Scheduler) shouldDrain() (drain, stepping bool) {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if !s.paused {
		return true, false
	}
	if s.step {
		s.step = false
		return true, true
	}
	return false, false
}

// popBucket detaches and returns the earliest bucket, or nil if none pending.
func (s *Scheduler) popBucket() *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	front := s.buckets.Front()
	if front == nil {
		return nil
	}
	b := front.Value.(*bucket)
	s.buckets.Remove(front)
	s.count -= b.entries.Len()
	return b
}

// peekDelay returns how far in simulated time the next bucket is from now,
// or 0 if there is no pending bucket.
func (s *Scheduler) peekDelay() simclock.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	front := s.buckets.Front()
	if front == nil {
		return 0
	}
	b := front.Value.(*bucket)
	now := s.clock.Now()
	if b.time <= now {
		return 0
	}
	return b.time - now
}

// Run is the single worker loop: it advances the clock to the next bucket's
// time, drains its entries in FIFO order via dispatch, and repeats until ctx
// is cancelled. In real-time mode it sleeps the scaled wall-clock interval
// between buckets in <=1ms slices so pause/step/stop stay responsive.
func (s *Scheduler) Run(ctx context.Context, dispatch Handler) error {
	s.started = true
	s.log.Debug("scheduler: run loop started")
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("scheduler: stopped by context", "reason", ctx.Err())
			return nil
		default:
		}

		drain, stepping := s.shouldDrain()
		if !drain {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				continue
			}
		}

		if s.realTime {
			if delay := s.peekDelay(); delay > 0 {
				slice := minDuration(s.clock.RealDelay(delay), time.Millisecond)
				timer := time.NewTimer(slice)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil
				case <-timer.C:
				}
				elapsed := s.clock.SimElapsed(slice)
				if elapsed > delay {
					elapsed = delay
				}
				s.clock.Advance(s.clock.Now() + elapsed)
				if stepping {
					// No bucket has drained for this step yet: keep it
					// pending so the wait ends in exactly one drain.
					s.pauseMu.Lock()
					if s.paused {
						s.step = true
					}
					s.pauseMu.Unlock()
				}
				continue
			}
		}

		b := s.popBucket()
		if b == nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				continue
			}
		}

		s.clock.Advance(b.time)
		metricBucketsDrained.Inc()

		for el := b.entries.Front(); el != nil; el = el.Next() {
			e := el.Value.(*Entry)
			metricEventsDispatched.Inc()
			if !dispatch(ctx, *e) {
				metricEventsFailed.Inc()
			}
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
