// Package registry implements the node lifecycle registry: add, remove,
// find by name/MAC/IP, and enumerate. Lookup is linear, matching
// rs_system_find_node_by_* in the reference simulator; names, MAC
// addresses, and IP addresses must each be unique across alive nodes.
package registry

import (
	"fmt"
	"sync"

	"github.com/malbeclabs/rplsim/internal/node"
	"github.com/malbeclabs/rplsim/internal/simerrors"
)

// Registry holds the process's (or test's) live node set under a single
// non-recursive mutex — the "nodes" lock in spec.md's three-lock model.
type Registry struct {
	mu    sync.RWMutex
	nodes []*node.Node
}

// New returns an empty registry.
func New() *Registry { return &Registry{} }

// Add registers n, failing with a RegistryError if its name, MAC, or IP
// collides with an existing node.
func (r *Registry) Add(n *node.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.nodes {
		if existing.Name() == n.Name() {
			return simerrors.New(simerrors.Registry, "registry.Add", fmt.Errorf("name %q already in use", n.Name()))
		}
		if existing.MAC() == n.MAC() {
			return simerrors.New(simerrors.Registry, "registry.Add", fmt.Errorf("mac %q already in use", n.MAC()))
		}
		if existing.IP() == n.IP() {
			return simerrors.New(simerrors.Registry, "registry.Add", fmt.Errorf("ip %q already in use", n.IP()))
		}
	}
	r.nodes = append(r.nodes, n)
	return nil
}

// Remove drops n from the registry. Unlike the reference simulator's
// rs_system_remove_node — which indexes node_list[i] after its search loop
// even when the node wasn't found — this never indexes past a failed
// search: a missing node is reported by its own handle, not by reading out
// of bounds.
func (r *Registry) Remove(n *node.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.nodes {
		if existing.Handle == n.Handle {
			r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
			return nil
		}
	}
	return simerrors.New(simerrors.Registry, "registry.Remove", fmt.Errorf("node %s not found", n.Handle))
}

// FindByName returns the node named name, or false if none matches.
func (r *Registry) FindByName(name string) (*node.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.Name() == name {
			return n, true
		}
	}
	return nil, false
}

// FindByMAC returns the node with MAC address mac, or false if none matches.
func (r *Registry) FindByMAC(mac string) (*node.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.MAC() == mac {
			return n, true
		}
	}
	return nil, false
}

// FindByIP returns the node with IP address ip, or false if none matches.
func (r *Registry) FindByIP(ip string) (*node.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.IP() == ip {
			return n, true
		}
	}
	return nil, false
}

// FindByHandle returns the node with the given handle, or false if it is
// not currently registered (e.g. it was killed and removed).
func (r *Registry) FindByHandle(h node.Handle) (*node.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.Handle == h {
			return n, true
		}
	}
	return nil, false
}

// ListSnapshot returns a shallow copy of the current node slice, safe to
// range over without holding the registry lock.
func (r *Registry) ListSnapshot() []*node.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*node.Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// DropRoutesReferencing removes every route, on every registered node, whose
// next hop is killed's handle — part of the kill sequence: "drops routes
// referencing the node as next-hop across the whole registry."
func (r *Registry) DropRoutesReferencing(killed *node.Node) {
	for _, n := range r.ListSnapshot() {
		n.Ip.Routes.RemoveByNextHop(killed.Handle)
		n.Ip.Neighbors.Remove(killed.Handle)
	}
}
