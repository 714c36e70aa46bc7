// Package node implements the simulated node: identity, position, per-layer
// protocol state, and the serialized dispatcher every handler targeting the
// node runs through.
package node

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/malbeclabs/rplsim/internal/dispatch"
	"github.com/malbeclabs/rplsim/internal/neighbor"
	"github.com/malbeclabs/rplsim/internal/routing"
)

// Handle identifies a node by a UUID minted once at creation. Per the
// REDESIGN FLAGS, routes and neighbor entries reference nodes by Handle
// rather than by pointer: a node's UUID is never reused, so a Handle from a
// killed node can never alias a later, unrelated node the way a reused raw
// pointer or array index could.
type Handle struct {
	ID uuid.UUID
}

// NewHandle mints a fresh, never-reused handle.
func NewHandle() Handle { return Handle{ID: uuid.New()} }

func (h Handle) String() string { return h.ID.String() }

// Position is a node's location in the bounded plane.
type Position struct {
	X, Y float64
}

// PhyState is the PHY layer's per-node state bag. The reference simulator
// keeps PHY state minimal (position/tx-power live on the node itself); this
// stays an empty extension point for hook-attached data.
type PhyState struct{}

// MacState is the MAC layer's per-node state bag.
type MacState struct{}

// pendingSend is one outbound IP PDU waiting for the busy/idle queue to
// drain, along with when it was enqueued (for ip_pdu_timeout expiry).
type pendingSend struct {
	enqueuedAt int64
	send       func()
}

// IpState is the IP layer's per-node state: its route table, neighbor
// cache, and the busy/idle backpressure queue. Per the REDESIGN FLAGS, the
// queue itself is the single source of truth for backpressure — there is no
// separate "queued" bool shadowing it, unlike the reference's ip_pdu_t.
type IpState struct {
	Address   string
	Routes    *routing.Table
	Neighbors *neighbor.Cache

	mu      sync.Mutex
	busy    bool
	queue   []pendingSend
	maxSize int
}

// NewIpState constructs IP layer state for address, with a queue bounded by
// queueSize and the given neighbor cache (which owns its own expiry timeout).
func NewIpState(address string, queueSize int, neighbors *neighbor.Cache) *IpState {
	return &IpState{
		Address:   address,
		Routes:    routing.NewTable(),
		Neighbors: neighbors,
		maxSize:   queueSize,
	}
}

// Enqueue adds send to the backpressure queue, returning false (QueueFull)
// if the queue is already at capacity. The idle->busy transition happens
// when this is the first entry in an empty queue.
func (s *IpState) Enqueue(now int64, send func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= s.maxSize {
		return false
	}
	s.queue = append(s.queue, pendingSend{enqueuedAt: now, send: send})
	s.busy = true
	return true
}

// Drain pops and runs the oldest pending send, if any, transitioning back
// to idle when the queue empties.
func (s *IpState) Drain() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.busy = false
		s.mu.Unlock()
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.busy = false
	}
	s.mu.Unlock()
	next.send()
}

// ExpireOlderThan drops queued entries older than timeout relative to now,
// per event_pdu_send_timeout_check, returning how many were dropped.
func (s *IpState) ExpireOlderThan(now int64, timeout int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	dropped := 0
	for _, p := range s.queue {
		if now-p.enqueuedAt > timeout {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	s.queue = kept
	if len(s.queue) == 0 {
		s.busy = false
	}
	return dropped
}

// Busy reports whether the IP layer is currently in the busy state.
func (s *IpState) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// EnqueuedCount returns the current queue depth.
func (s *IpState) EnqueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IcmpState is the ICMP layer's per-node state bag; empty, an extension
// point for hook-attached data (e.g. pending echo sequence numbers).
type IcmpState struct{}

// Node is the simulated unit of identity and serial execution. Per
// spec.md §3: at most one handler runs on a node at a time, enforced by its
// Dispatcher.
type Node struct {
	Handle Handle

	mu       sync.RWMutex
	name     string
	mac      string
	ip       string
	position Position
	txPower  float64
	alive    bool

	Phy  PhyState
	Mac  MacState
	Ip   *IpState
	Icmp IcmpState
	// Rpl holds whatever state the external RPL logic wants to attach; the
	// core never reads or writes it.
	Rpl any

	Dispatcher *dispatch.Dispatcher
}

// Config seeds a new node's identity and initial state.
type Config struct {
	Name      string
	MAC       string
	IP        string
	Position  Position
	TxPower   float64
	QueueSize int
	Neighbors *neighbor.Cache

	DispatchQueueDepth int
}

// New constructs a Node in the not-yet-woken state (alive=false until
// event_node_wake fires, per spec.md §4.7).
func New(cfg Config, log *slog.Logger) *Node {
	n := &Node{
		Handle:   NewHandle(),
		name:     cfg.Name,
		mac:      cfg.MAC,
		ip:       cfg.IP,
		position: cfg.Position,
		txPower:  cfg.TxPower,
		Ip:       NewIpState(cfg.IP, cfg.QueueSize, cfg.Neighbors),
	}
	n.Dispatcher = dispatch.New(log, cfg.DispatchQueueDepth)
	return n
}

func (n *Node) Name() string { n.mu.RLock(); defer n.mu.RUnlock(); return n.name }
func (n *Node) MAC() string  { n.mu.RLock(); defer n.mu.RUnlock(); return n.mac }
func (n *Node) IP() string   { n.mu.RLock(); defer n.mu.RUnlock(); return n.ip }

func (n *Node) Position() Position {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.position
}

func (n *Node) SetPosition(p Position) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.position = p
}

func (n *Node) TxPower() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.txPower
}

func (n *Node) Alive() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.alive
}

func (n *Node) SetAlive(alive bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alive = alive
}

// Snapshot is a safe, lock-free-to-read copy of a node's externally visible
// state, for diagnostics/status endpoints — mirrors liveness.Session's
// Snapshot() pattern.
type Snapshot struct {
	Handle   Handle
	Name     string
	MAC      string
	IP       string
	Position Position
	TxPower  float64
	Alive    bool
	Busy     bool
	Queued   int
}

func (n *Node) Snapshot() Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Snapshot{
		Handle:   n.Handle,
		Name:     n.name,
		MAC:      n.mac,
		IP:       n.ip,
		Position: n.position,
		TxPower:  n.txPower,
		Alive:    n.alive,
		Busy:     n.Ip.Busy(),
		Queued:   n.Ip.EnqueuedCount(),
	}
}
