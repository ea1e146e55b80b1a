// Package flowtable implements the five-tuple flow key/stats model and
// the concurrent table that aggregates observed traffic by flow.
package flowtable

import (
	"fmt"
	"net"
	"strings"
)

// Transport identifies the transport-layer protocol of a flow.
type Transport string

const (
	TCP   Transport = "TCP"
	UDP   Transport = "UDP"
	ICMP  Transport = "ICMP"
	Other Transport = "OTHER"
)

// Direction records which side of a flow the local host was on when a
// given packet was observed.
type Direction string

const (
	Outgoing Direction = "OUTGOING"
	Incoming Direction = "INCOMING"
	Unknown  Direction = "UNKNOWN"
)

// FlowKey is the immutable five-tuple identifying a flow. Two keys
// are equal iff all five fields match; src/dst are never normalized,
// so a single exchange between two hosts produces two keys (one per
// endpoint) when both ports fall inside the active port window.
type FlowKey struct {
	SrcAddr   string
	SrcPort   uint16
	DstAddr   string
	DstPort   uint16
	Transport Transport
}

// NewFlowKey builds a FlowKey from already-decoded addresses. addr
// arguments should be the textual form of the IP (as produced by
// net.IP.String()); it is stored as-is.
func NewFlowKey(srcAddr string, srcPort uint16, dstAddr string, dstPort uint16, transport Transport) FlowKey {
	return FlowKey{
		SrcAddr:   srcAddr,
		SrcPort:   srcPort,
		DstAddr:   dstAddr,
		DstPort:   dstPort,
		Transport: transport,
	}
}

// String renders the canonical textual form used both for reporting
// and as the flow table's internal map key: no leading/trailing
// whitespace, a colon between address and port, dot-separated IPv4,
// bracketed IPv6.
func (k FlowKey) String() string {
	return fmt.Sprintf("%s<->%s|%s", formatAddrPort(k.SrcAddr, k.SrcPort), formatAddrPort(k.DstAddr, k.DstPort), k.Transport)
}

// SrcEndpoint and DstEndpoint render just one side of the key, as used by the plain
// text report (§6): "Address: <addr>:<port>".
func (k FlowKey) SrcEndpoint() string { return formatAddrPort(k.SrcAddr, k.SrcPort) }
func (k FlowKey) DstEndpoint() string { return formatAddrPort(k.DstAddr, k.DstPort) }

func formatAddrPort(addr string, port uint16) string {
	a := strings.TrimSpace(addr)
	if ip := net.ParseIP(a); ip != nil && strings.Contains(a, ":") {
		return fmt.Sprintf("[%s]:%d", a, port)
	}
	return fmt.Sprintf("%s:%d", a, port)
}
