// Package report rolls a FlowTable snapshot up into Detailed, Process,
// Port, or User views (component E). The teacher has no equivalent —
// it only ever exposed one row per flow — so the rollup rules here
// are new, built in the snapshot-then-transform shape of the
// teacher's flow broadcaster.
package report

import (
	"sort"

	"trafficwatch/internal/flowtable"
)

// View selects a rollup strategy.
type View int

const (
	Detailed View = iota
	Process
	Port
	User
)

// unknownPID/unknownUID are the sentinel bucket identifiers used when
// a flow has no resolved owner.
const (
	unknownPID uint32 = 0
	unknownUID uint32 = 0
)

// Row is one bucket of a rolled-up report. Label is the bucket's
// canonical identity and its ascending sort tie-break key; exactly
// the fields relevant to the requested View are meaningful.
type Row struct {
	Label string

	FlowKey    flowtable.FlowKey
	PID        uint32
	PIDUnknown bool
	Port       uint16
	UID        uint32
	UIDUnknown bool

	BytesIn    uint64
	PacketsIn  uint64
	BytesOut   uint64
	PacketsOut uint64
}

func (r *Row) addTransmitted(bytes, packets uint64) {
	r.BytesOut += bytes
	r.PacketsOut += packets
}

func (r *Row) addReceived(bytes, packets uint64) {
	r.BytesIn += bytes
	r.PacketsIn += packets
}

// Build rolls entries up into rows per view. SortMostBytes and
// SortMostPackets order rows by descending totals with ascending-label
// tie-breaks. Rows carry no timestamp, so SortMostRecent does not order
// by recency here: it orders rows by Label ascending, which also
// replaces the order of the incoming entries.
func Build(entries []flowtable.Entry, view View, sortType flowtable.SortType) []Row {
	switch view {
	case Process:
		return sortRows(buildProcess(entries), sortType)
	case Port:
		return sortRows(buildPort(entries), sortType)
	case User:
		return sortRows(buildUser(entries), sortType)
	default:
		return sortRows(buildDetailed(entries), sortType)
	}
}

func buildDetailed(entries []flowtable.Entry) []Row {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		r := Row{Label: e.Key.String(), FlowKey: e.Key}
		r.addTransmitted(e.Stats.TransmittedBytes, e.Stats.TransmittedPackets)
		r.addReceived(e.Stats.ReceivedBytes, e.Stats.ReceivedPackets)
		rows = append(rows, r)
	}
	return rows
}

// buildProcess buckets by every PID in a flow's owner set, crediting
// the full flow counters to each (not divided): traffic is genuinely
// attributable to every process sharing the socket.
func buildProcess(entries []flowtable.Entry) []Row {
	buckets := make(map[uint32]*Row)
	get := func(pid uint32, unknown bool) *Row {
		r, ok := buckets[pid]
		if !ok {
			r = &Row{PID: pid, PIDUnknown: unknown, Label: pidLabel(pid, unknown)}
			buckets[pid] = r
		}
		return r
	}

	for _, e := range entries {
		if e.Stats.Owner == nil || len(e.Stats.Owner.PIDs) == 0 {
			r := get(unknownPID, true)
			r.addTransmitted(e.Stats.TransmittedBytes, e.Stats.TransmittedPackets)
			r.addReceived(e.Stats.ReceivedBytes, e.Stats.ReceivedPackets)
			continue
		}
		for pid := range e.Stats.Owner.PIDs {
			r := get(pid, false)
			r.addTransmitted(e.Stats.TransmittedBytes, e.Stats.TransmittedPackets)
			r.addReceived(e.Stats.ReceivedBytes, e.Stats.ReceivedPackets)
		}
	}
	return flattenRows(buckets)
}

// buildPort buckets by local port: src_port for Outgoing flows,
// dst_port for Incoming, both for Unknown direction.
func buildPort(entries []flowtable.Entry) []Row {
	buckets := make(map[uint16]*Row)
	get := func(port uint16) *Row {
		r, ok := buckets[port]
		if !ok {
			r = &Row{Port: port, Label: portLabel(port)}
			buckets[port] = r
		}
		return r
	}

	for _, e := range entries {
		switch e.Stats.Direction {
		case flowtable.Outgoing:
			r := get(e.Key.SrcPort)
			r.addTransmitted(e.Stats.TransmittedBytes, e.Stats.TransmittedPackets)
			r.addReceived(e.Stats.ReceivedBytes, e.Stats.ReceivedPackets)
		case flowtable.Incoming:
			r := get(e.Key.DstPort)
			r.addTransmitted(e.Stats.TransmittedBytes, e.Stats.TransmittedPackets)
			r.addReceived(e.Stats.ReceivedBytes, e.Stats.ReceivedPackets)
		default:
			rs := get(e.Key.SrcPort)
			rs.addTransmitted(e.Stats.TransmittedBytes, e.Stats.TransmittedPackets)
			rs.addReceived(e.Stats.ReceivedBytes, e.Stats.ReceivedPackets)
			if e.Key.DstPort != e.Key.SrcPort {
				rd := get(e.Key.DstPort)
				rd.addTransmitted(e.Stats.TransmittedBytes, e.Stats.TransmittedPackets)
				rd.addReceived(e.Stats.ReceivedBytes, e.Stats.ReceivedPackets)
			}
		}
	}
	return flattenRows(buckets)
}

func buildUser(entries []flowtable.Entry) []Row {
	buckets := make(map[uint32]*Row)
	get := func(uid uint32, unknown bool) *Row {
		r, ok := buckets[uid]
		if !ok {
			r = &Row{UID: uid, UIDUnknown: unknown, Label: uidLabel(uid, unknown)}
			buckets[uid] = r
		}
		return r
	}

	for _, e := range entries {
		unknown := e.Stats.Owner == nil
		uid := unknownUID
		if !unknown {
			uid = e.Stats.Owner.UID
		}
		r := get(uid, unknown)
		r.addTransmitted(e.Stats.TransmittedBytes, e.Stats.TransmittedPackets)
		r.addReceived(e.Stats.ReceivedBytes, e.Stats.ReceivedPackets)
	}
	return flattenRows(buckets)
}

func flattenRows[K comparable](buckets map[K]*Row) []Row {
	rows := make([]Row, 0, len(buckets))
	for _, r := range buckets {
		rows = append(rows, *r)
	}
	return rows
}

func pidLabel(pid uint32, unknown bool) string {
	if unknown {
		return "Unknown"
	}
	return formatUint(uint64(pid))
}

func uidLabel(uid uint32, unknown bool) string {
	if unknown {
		return "Unknown"
	}
	return formatUint(uint64(uid))
}

func portLabel(port uint16) string {
	return formatUint(uint64(port))
}

func formatUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	digits := []byte{}
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

func sortRows(rows []Row, sortType flowtable.SortType) []Row {
	switch sortType {
	case flowtable.SortMostBytes:
		sort.Slice(rows, func(i, j int) bool {
			bi := rows[i].BytesIn + rows[i].BytesOut
			bj := rows[j].BytesIn + rows[j].BytesOut
			if bi != bj {
				return bi > bj
			}
			return rows[i].Label < rows[j].Label
		})
	case flowtable.SortMostPackets:
		sort.Slice(rows, func(i, j int) bool {
			pi := rows[i].PacketsIn + rows[i].PacketsOut
			pj := rows[j].PacketsIn + rows[j].PacketsOut
			if pi != pj {
				return pi > pj
			}
			return rows[i].Label < rows[j].Label
		})
	default:
		sort.Slice(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })
	}
	return rows
}
