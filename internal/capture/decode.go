package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"trafficwatch/internal/flowtable"
)

// decodedPacket is the minimal shape extracted from a frame, generalizing
// the teacher's parser.ExtractFlowTuple to the fields this component needs.
type decodedPacket struct {
	srcAddr, dstAddr string
	srcPort, dstPort uint16
	transport        flowtable.Transport
	payloadBytes     uint64
}

// decodePacket extracts addresses, ports, transport and payload length
// from pkt. ok is false for frames with no IPv4/IPv6 layer (ARP,
// spanning tree, etc.), which the caller drops.
func decodePacket(pkt gopacket.Packet) (decodedPacket, bool) {
	var d decodedPacket

	if v4 := pkt.Layer(layers.LayerTypeIPv4); v4 != nil {
		ip, ok := v4.(*layers.IPv4)
		if !ok {
			return d, false
		}
		d.srcAddr = ip.SrcIP.String()
		d.dstAddr = ip.DstIP.String()
		headerLen := uint16(ip.IHL) * 4
		if ip.Length >= headerLen {
			d.payloadBytes = uint64(ip.Length - headerLen)
		}
	} else if v6 := pkt.Layer(layers.LayerTypeIPv6); v6 != nil {
		ip, ok := v6.(*layers.IPv6)
		if !ok {
			return d, false
		}
		d.srcAddr = ip.SrcIP.String()
		d.dstAddr = ip.DstIP.String()
		d.payloadBytes = uint64(ip.Length)
	} else {
		return d, false
	}

	switch {
	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		d.srcPort = uint16(tcp.SrcPort)
		d.dstPort = uint16(tcp.DstPort)
		d.transport = flowtable.TCP
	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		d.srcPort = uint16(udp.SrcPort)
		d.dstPort = uint16(udp.DstPort)
		d.transport = flowtable.UDP
	case pkt.Layer(layers.LayerTypeICMPv4) != nil, pkt.Layer(layers.LayerTypeICMPv6) != nil:
		d.transport = flowtable.ICMP
	default:
		d.transport = flowtable.Other
	}

	return d, true
}

// direction compares src/dst against the interface's own addresses to
// decide which way a packet crossed the host, per §4.D step 3.
func direction(srcAddr, dstAddr string, localAddrs map[string]struct{}) flowtable.Direction {
	_, srcLocal := localAddrs[srcAddr]
	_, dstLocal := localAddrs[dstAddr]
	switch {
	case srcLocal && !dstLocal:
		return flowtable.Outgoing
	case dstLocal && !srcLocal:
		return flowtable.Incoming
	default:
		return flowtable.Unknown
	}
}

// invert swaps Outgoing/Incoming for the reverse-endpoint observation;
// Unknown stays Unknown.
func invert(d flowtable.Direction) flowtable.Direction {
	switch d {
	case flowtable.Outgoing:
		return flowtable.Incoming
	case flowtable.Incoming:
		return flowtable.Outgoing
	default:
		return flowtable.Unknown
	}
}

