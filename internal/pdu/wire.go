package pdu

import (
	"encoding/hex"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EncodeWire renders a simulated frame as a real Ethernet/IPv6/ICMPv6 byte
// sequence, so a running simulation's traffic can be exported for capture
// tooling (tcpdump/Wireshark) even though no bytes ever actually cross a
// wire during the simulation itself. This is a diagnostics feature, not part
// of the send/receive hot path: the pipeline itself runs entirely over the
// typed chain in pdu.go.
func EncodeWire(phy *PhyPdu) ([]byte, error) {
	mac, ok := phy.Sdu.(*MacPdu)
	if !ok {
		return nil, fmt.Errorf("pdu: cannot encode non-mac phy sdu to wire format")
	}
	ip, ok := mac.Sdu.(*IpPdu)
	if !ok || mac.Type != MACTypeIP {
		return nil, fmt.Errorf("pdu: cannot encode non-ip mac sdu to wire format")
	}
	icmp, ok := ip.Sdu.(*IcmpPdu)
	if !ok {
		return nil, fmt.Errorf("pdu: cannot encode non-icmp ip sdu to wire format")
	}

	eth := &layers.Ethernet{
		SrcMAC:       padMAC(mac.SrcMAC),
		DstMAC:       padMAC(mac.DstMAC),
		EthernetType: layers.EthernetTypeIPv6,
	}
	ipv6 := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolICMPv6,
		HopLimit:   64,
		SrcIP:      padIP(ip.SrcIP),
		DstIP:      padIP(ip.DstIP),
	}
	icmpv6 := &layers.ICMPv6{
		TypeCode: layers.CreateICMPv6TypeCode(icmp.Type, icmp.Code),
	}
	if err := icmpv6.SetNetworkLayerForChecksum(ipv6); err != nil {
		return nil, fmt.Errorf("pdu: set checksum network layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ipv6, icmpv6, gopacket.Payload(rplPayloadBytes(icmp))); err != nil {
		return nil, fmt.Errorf("pdu: serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}

// rplPayloadBytes renders the innermost RPL message as a short diagnostic
// byte string; it is not a real wire format, just enough to make the
// exported capture's payload non-empty and distinguishable by message kind.
func rplPayloadBytes(icmp *IcmpPdu) []byte {
	env, ok := icmp.Sdu.(RplEnvelope)
	if !ok {
		return nil
	}
	switch m := env.Message.(type) {
	case RplDis:
		return []byte("DIS")
	case RplDio:
		return []byte(fmt.Sprintf("DIO rank=%d dodag=%s", m.Payload.Rank, m.Payload.DodagID))
	case RplDao:
		return []byte(fmt.Sprintf("DAO target=%s/%d", m.Payload.TargetPrefix, m.Payload.TargetPrefixLen))
	default:
		return nil
	}
}

// padMAC expands a short hex MAC string (e.g. "0001") into a 6-byte
// net.HardwareAddr, zero-padded on the left, since the simulator's node
// addresses are shorter than a real MAC. A string that is not valid hex is
// used as raw bytes instead.
func padMAC(s string) net.HardwareAddr {
	raw, err := hex.DecodeString(s)
	if err != nil {
		raw = []byte(s)
	}
	out := make(net.HardwareAddr, 6)
	copy(out[6-min(len(raw), 6):], raw[max(0, len(raw)-6):])
	return out
}

// padIP expands a short hex IP string (e.g. "AA01") into a 16-byte IPv6
// address, zero-padded on the left. A string that is not valid hex is used
// as raw bytes instead.
func padIP(s string) net.IP {
	raw, err := hex.DecodeString(s)
	if err != nil {
		raw = []byte(s)
	}
	out := make(net.IP, 16)
	copy(out[16-min(len(raw), 16):], raw[max(0, len(raw)-16):])
	return out
}
