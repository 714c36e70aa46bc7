// Package pdu implements the layered protocol data unit chain: PHY wraps
// MAC wraps IP wraps ICMP wraps an RPL message. Per the REDESIGN FLAGS, this
// replaces the reference simulator's void-pointer SDU chain with sum types:
// each layer's Sdu field is an interface implemented by exactly the inner
// PDU types valid at that layer, so the encapsulation invariant holds by
// construction instead of by convention.
package pdu

import "github.com/malbeclabs/rplsim/internal/routing"

// MACTypeIP is the MAC-layer type identifier selecting IP as MAC's SDU,
// matching the reference simulator's MAC_TYPE_IP.
const MACTypeIP uint16 = 0x86DD

// ICMP types/codes. RPL is the only supported ICMP type; code selects the
// RPL message kind.
const (
	ICMPTypeRPL uint8 = 155 // matches RFC 6550's ICMPv6 type for RPL control messages

	ICMPCodeDIS uint8 = 0x00
	ICMPCodeDIO uint8 = 0x01
	ICMPCodeDAO uint8 = 0x02
)

// PhySdu is the sum type of payloads a PHY PDU may carry.
type PhySdu interface{ isPhySdu() }

// MacSdu is the sum type of payloads a MAC PDU may carry.
type MacSdu interface{ isMacSdu() }

// IpSdu is the sum type of payloads an IP PDU may carry.
type IpSdu interface{ isIpSdu() }

// IcmpSdu is the sum type of payloads an ICMP PDU may carry.
type IcmpSdu interface{ isIcmpSdu() }

// RplMessage is the sum type of RPL control messages: DIS, DIO, or DAO.
type RplMessage interface{ isRplMessage() }

// PhyPdu is the outermost layer: what the wireless medium actually carries.
type PhyPdu struct {
	Sdu PhySdu
}

// MacPdu carries a MAC frame. Type selects the next layer; only
// MACTypeIP is understood by the receive pipeline.
type MacPdu struct {
	SrcMAC, DstMAC string
	Type           uint16
	Sdu            MacSdu
}

func (p *MacPdu) isPhySdu() {}

// IpPdu carries an IP packet. NextHeader selects the next layer; only ICMP
// is understood by the receive pipeline.
type IpPdu struct {
	SrcIP, DstIP string
	FlowLabel    routing.FlowLabel
	NextHeader   uint8
	Sdu          IpSdu
}

func (p *IpPdu) isMacSdu() {}

// Duplicate returns a copy of p suitable for handing to a different
// next-hop: the flow label is deep-copied, but the upper-layer SDU reference
// may be shared (shallow-copied) across next-hops, matching spec.md's
// duplication invariant.
func (p *IpPdu) Duplicate() *IpPdu {
	dup := *p
	dup.FlowLabel = p.FlowLabel.Clone()
	return &dup
}

// Duplicate returns a PhyPdu independent of p down through the IP layer: the
// PHY and MAC wrappers are copied, and the IP layer's own Duplicate is used
// so each recipient gets its own flow label instead of sharing the sender's
// — needed wherever one frame fans out to multiple recipients, such as a
// broadcast delivery, so one recipient's handling can never mutate state
// another recipient's copy still depends on.
func (p *PhyPdu) Duplicate() *PhyPdu {
	dup := *p
	if mac, ok := p.Sdu.(*MacPdu); ok {
		macDup := *mac
		if ip, ok := mac.Sdu.(*IpPdu); ok {
			macDup.Sdu = ip.Duplicate()
		}
		dup.Sdu = &macDup
	}
	return &dup
}

// IcmpPdu carries an ICMP message. Type/Code select the RPL message kind.
type IcmpPdu struct {
	Type uint8
	Code uint8
	Sdu  IcmpSdu
}

func (p *IcmpPdu) isIpSdu() {}

func (m *IcmpPdu) isIcmpSdu() {}

// RplDis is the DIS message; it carries no payload.
type RplDis struct{}

func (RplDis) isRplMessage() {}

// DioPayload is the DIO control-message payload: the DODAG this node
// advertises and the rank it advertises at.
type DioPayload struct {
	DodagID        string
	DodagVersion   uint8
	InstanceID     uint8
	Rank           uint16
	GroundedPrefer bool
}

// RplDio is the DIO message.
type RplDio struct {
	Payload DioPayload
}

func (RplDio) isRplMessage() {}

// DaoPayload is the DAO control-message payload: a destination prefix being
// advertised up the DODAG towards the root, with the sequence number used
// to detect stale advertisements.
type DaoPayload struct {
	TargetPrefix    string
	TargetPrefixLen uint8
	PathSequence    uint8
}

// RplDao is the DAO message.
type RplDao struct {
	Payload DaoPayload
}

func (RplDao) isRplMessage() {}

// wrap types implementing IcmpSdu: the ICMP PDU's Sdu is always an RplMessage,
// but RplMessage values don't themselves satisfy IcmpSdu directly since DIS,
// DIO, DAO are distinguished at the ICMP layer by (type, code), not by Go's
// type system alone. RplEnvelope bridges the two.
type RplEnvelope struct {
	Message RplMessage
}

func (RplEnvelope) isIcmpSdu() {}

// BuildRPLFrame constructs the full PHY(MAC(IP(ICMP(RPL)))) chain for
// sending msg from src to dst. code must match msg's concrete kind.
func BuildRPLFrame(srcMAC, dstMAC, srcIP, dstIP string, code uint8, msg RplMessage) *PhyPdu {
	icmp := &IcmpPdu{Type: ICMPTypeRPL, Code: code, Sdu: RplEnvelope{Message: msg}}
	ip := &IpPdu{SrcIP: srcIP, DstIP: dstIP, NextHeader: ICMPTypeRPL, Sdu: icmp}
	mac := &MacPdu{SrcMAC: srcMAC, DstMAC: dstMAC, Type: MACTypeIP, Sdu: ip}
	return &PhyPdu{Sdu: mac}
}

// CodeForMessage returns the ICMP code corresponding to msg's concrete kind.
func CodeForMessage(msg RplMessage) uint8 {
	switch msg.(type) {
	case RplDis:
		return ICMPCodeDIS
	case RplDio:
		return ICMPCodeDIO
	case RplDao:
		return ICMPCodeDAO
	default:
		return 0xFF
	}
}
