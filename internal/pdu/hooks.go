package pdu

import "context"

// NodeRef is an opaque node handle passed to hooks; hooks never need to
// dereference it themselves beyond what the handle type they were built
// against exposes.
type NodeRef any

// Hooks is the interface external protocol logic (the RPL layer above the
// core, out of scope per spec.md §1) registers with the core. For each
// layer and direction the core calls exactly one method, mirroring the
// shape of client/doublezerod's bgp.Plugin: small, focused callbacks the
// core invokes and the plugin either accepts or rejects.
//
// Every method returns false to reject/abort the frame; the pipeline then
// aborts that frame only, never the simulation.
type Hooks interface {
	// BeforePhySent runs before a PHY PDU is handed to the medium.
	BeforePhySent(ctx context.Context, node NodeRef, p *PhyPdu) bool
	// AfterPhyReceived runs first on receipt; failure drops the frame before
	// any inner layer is examined.
	AfterPhyReceived(ctx context.Context, node NodeRef, p *PhyPdu) bool

	// BeforeMacSent runs before a MAC PDU is handed to the medium.
	BeforeMacSent(ctx context.Context, node NodeRef, p *MacPdu) bool
	// AfterMacReceived runs after a MAC PDU arrives at a node.
	AfterMacReceived(ctx context.Context, node NodeRef, p *MacPdu) bool

	// BeforeIpSent runs before an IP PDU is wrapped into MAC. Layers may
	// mutate the flow label here.
	BeforeIpSent(ctx context.Context, node NodeRef, p *IpPdu) bool
	// AfterIpReceived runs after an IP PDU is unwrapped from MAC.
	AfterIpReceived(ctx context.Context, node NodeRef, p *IpPdu) bool

	// BeforeIcmpSent runs before an ICMP PDU is wrapped into IP.
	BeforeIcmpSent(ctx context.Context, node NodeRef, p *IcmpPdu) bool
	// AfterIcmpReceived runs after an ICMP PDU is unwrapped from IP.
	AfterIcmpReceived(ctx context.Context, node NodeRef, p *IcmpPdu) bool

	// BeforeRplSent runs before an RPL message is wrapped into ICMP. kind
	// distinguishes DIS/DIO/DAO so the plugin can dispatch without a type
	// switch of its own.
	BeforeRplSent(ctx context.Context, node NodeRef, kind uint8, msg RplMessage) bool
	// AfterRplReceived runs once the RPL message has been unwrapped all the
	// way down; this is the innermost handler spec.md's data-flow
	// description calls "until the innermost handler consumes it."
	AfterRplReceived(ctx context.Context, node NodeRef, kind uint8, msg RplMessage) bool
}

// Mangler is the medium's per-frame injection hook. The default
// implementation is the identity function.
type Mangler func(p *PhyPdu) *PhyPdu

// IdentityMangler returns p unchanged.
func IdentityMangler(p *PhyPdu) *PhyPdu { return p }

// NopHooks is a Hooks implementation whose every method accepts the frame.
// Useful as a default when no external RPL logic has registered yet and for
// tests that only exercise the pipeline's plumbing.
type NopHooks struct{}

func (NopHooks) BeforePhySent(context.Context, NodeRef, *PhyPdu) bool        { return true }
func (NopHooks) AfterPhyReceived(context.Context, NodeRef, *PhyPdu) bool     { return true }
func (NopHooks) BeforeMacSent(context.Context, NodeRef, *MacPdu) bool        { return true }
func (NopHooks) AfterMacReceived(context.Context, NodeRef, *MacPdu) bool     { return true }
func (NopHooks) BeforeIpSent(context.Context, NodeRef, *IpPdu) bool          { return true }
func (NopHooks) AfterIpReceived(context.Context, NodeRef, *IpPdu) bool       { return true }
func (NopHooks) BeforeIcmpSent(context.Context, NodeRef, *IcmpPdu) bool      { return true }
func (NopHooks) AfterIcmpReceived(context.Context, NodeRef, *IcmpPdu) bool   { return true }
func (NopHooks) BeforeRplSent(context.Context, NodeRef, uint8, RplMessage) bool { return true }
func (NopHooks) AfterRplReceived(context.Context, NodeRef, uint8, RplMessage) bool {
	return true
}
