// Package scenario loads a YAML scenario file — the "external collaborator"
// spec.md §6 says constructs nodes and drives the control API — and applies
// it against a *world.World.
package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/malbeclabs/rplsim/internal/node"
	"github.com/malbeclabs/rplsim/internal/routing"
	"github.com/malbeclabs/rplsim/internal/simerrors"
	"github.com/malbeclabs/rplsim/internal/world"
)

// NodeSpec describes one node to create.
type NodeSpec struct {
	Name      string  `yaml:"name"`
	MAC       string  `yaml:"mac"`
	IP        string  `yaml:"ip"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	TxPower   float64 `yaml:"tx_power"`
	QueueSize int     `yaml:"queue_size"`
}

// RouteSpec installs a static route on a node, e.g. a manual default route
// towards a DODAG root before RPL converges.
type RouteSpec struct {
	Node      string `yaml:"node"`
	Dst       string `yaml:"dst"`
	PrefixLen uint8  `yaml:"prefix_len"`
	NextHop   string `yaml:"next_hop"`
}

// Scenario is the top-level document shape a host loads and applies.
type Scenario struct {
	Name        string      `yaml:"name"`
	StartPaused bool        `yaml:"start_paused"`
	Nodes       []NodeSpec  `yaml:"nodes"`
	Routes      []RouteSpec `yaml:"routes"`
}

// Load parses a YAML scenario document from path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerrors.New(simerrors.Configuration, "scenario.Load", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, simerrors.New(simerrors.Configuration, "scenario.Load", fmt.Errorf("decode: %w", err))
	}
	return &s, nil
}

// Apply constructs every node and route s describes against w, via the same
// control API (AddNode, routing.Table.Add) any other host would use, then
// starts the world per StartPaused.
func (s *Scenario) Apply(w *world.World, dispatchQueueDepth int) error {
	v := w.Config.Snapshot()
	byName := make(map[string]*node.Node, len(s.Nodes))

	for _, ns := range s.Nodes {
		queueSize := ns.QueueSize
		if queueSize == 0 {
			queueSize = v.IpQueueSize
		}
		n, err := w.AddNode(node.Config{
			Name:               ns.Name,
			MAC:                ns.MAC,
			IP:                 ns.IP,
			Position:           node.Position{X: ns.X, Y: ns.Y},
			TxPower:            ns.TxPower,
			QueueSize:          queueSize,
			DispatchQueueDepth: dispatchQueueDepth,
		})
		if err != nil {
			return fmt.Errorf("scenario: add node %q: %w", ns.Name, err)
		}
		byName[ns.Name] = n
	}

	for _, rs := range s.Routes {
		n, ok := byName[rs.Node]
		if !ok {
			return fmt.Errorf("scenario: route references unknown node %q", rs.Node)
		}
		nextHop, ok := byName[rs.NextHop]
		if !ok {
			return fmt.Errorf("scenario: route on %q references unknown next hop %q", rs.Node, rs.NextHop)
		}
		r, err := routing.NewRoute(rs.Dst, rs.PrefixLen, nextHop.Handle, routing.Manual, w.Clock.Now())
		if err != nil {
			return fmt.Errorf("scenario: route on %q: %w", rs.Node, err)
		}
		n.Ip.Routes.Add(r)
	}

	w.Start(s.StartPaused)
	return nil
}
