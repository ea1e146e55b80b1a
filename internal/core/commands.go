package core

import (
	"trafficwatch/internal/flowtable"
	"trafficwatch/internal/report"
)

// StartCaptureCmd opens iface and begins posting observations into
// the flow table, restricted to the given port window. IngressKbps of
// 0 skips ingress policing setup; IngressBurstKB of 0 uses
// trafficctl.DefaultBurstKB.
type StartCaptureCmd struct {
	Interface      string
	PortLow        uint16
	PortHigh       uint16
	IngressKbps    int
	IngressBurstKB int
}

// StartReplayCmd replays a previously captured .pcap file through the
// same flow-table pipeline as a live capture, restricted to the given
// port window. There is no live interface to read a local-address set
// from, so every observed flow's direction resolves to Unknown rather
// than Outgoing/Incoming.
type StartReplayCmd struct {
	Path     string
	PortLow  uint16
	PortHigh uint16
}

// SnapshotCmd requests a rolled-up, filtered, sorted, paged view.
type SnapshotCmd struct {
	View   report.View
	Filter flowtable.Filter
	Sort   flowtable.SortType
	Page   int
}

// ThrottlePidCmd, ThrottlePortCmd, UnthrottlePidCmd, UnthrottlePortCmd
// mirror spec.md §6's command enum variants.
type ThrottlePidCmd struct {
	Pid  uint32
	Kbps int
}

type ThrottlePortCmd struct {
	Port    uint16
	Kbps    int
	BurstKB int
}

type UnthrottlePidCmd struct{ Pid uint32 }

type UnthrottlePortCmd struct{ Port uint16 }

// SnapshotResult is the Ok payload of a SnapshotCmd.
type SnapshotResult struct {
	Rows  []report.Row
	Total int
}
