package flowtable

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"
)

// Entry pairs a key with a point-in-time snapshot of its stats, as
// returned by Table.Snapshot.
type Entry struct {
	Key   FlowKey
	Stats Snapshot
}

// Table is the concurrent FlowKey -> FlowStats map (component C).
// The map itself is lock-free (haxmap); each FlowStats additionally
// owns a per-entry mutex so that mutating its counters is a short
// critical section independent of any other flow.
type Table struct {
	entries *haxmap.Map[string, *FlowStats]
	// keyIndex recovers the structured FlowKey for a given canonical
	// string, since haxmap.ForEach only yields the map's own key type.
	keyIndex *haxmap.Map[string, FlowKey]
	ordinal  atomic.Uint64
}

// NewTable constructs an empty flow table.
func NewTable() *Table {
	return &Table{
		entries:  haxmap.New[string, *FlowStats](),
		keyIndex: haxmap.New[string, FlowKey](),
	}
}

// Observe upserts a single directional observation into the table.
// direction and protocol describe the packet that produced
// (deltaBytes, deltaPackets); deltaPackets is normally 1.
func (t *Table) Observe(key FlowKey, deltaBytes uint64, deltaPackets uint64, protocol Transport, direction Direction, now time.Time) *FlowStats {
	keyStr := key.String()
	stats, loaded := t.entries.GetOrCompute(keyStr, func() *FlowStats {
		return &FlowStats{
			InitialTimestamp: now,
			FinalTimestamp:   now,
			ProtocolsSeen:    map[Transport]struct{}{protocol: {}},
			Direction:        direction,
			Index:            t.ordinal.Add(1) - 1,
		}
	})
	if !loaded {
		t.keyIndex.GetOrCompute(keyStr, func() FlowKey { return key })
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()

	if loaded {
		// First writer created initial_timestamp==final_timestamp already;
		// subsequent writers widen the span: final_timestamp takes the
		// max, initial_timestamp the min.
		if now.After(stats.FinalTimestamp) {
			stats.FinalTimestamp = now
		}
		if now.Before(stats.InitialTimestamp) {
			stats.InitialTimestamp = now
		}
		stats.ProtocolsSeen[protocol] = struct{}{}
		if stats.Direction == Unknown && direction != Unknown {
			stats.Direction = direction
		}
	}

	switch direction {
	case Outgoing:
		stats.TransmittedBytes += deltaBytes
		stats.TransmittedPackets += deltaPackets
	case Incoming:
		stats.ReceivedBytes += deltaBytes
		stats.ReceivedPackets += deltaPackets
	default:
		// Unknown direction: spec does not define which counter an
		// unattributable packet should land in; it is still counted as
		// transmitted so totals never silently drop bytes.
		stats.TransmittedBytes += deltaBytes
		stats.TransmittedPackets += deltaPackets
	}

	return stats
}

// SetOwner attaches or extends ownership for the entry identified by
// key, if it exists.
func (t *Table) SetOwner(key FlowKey, uid uint32, pids ...uint32) {
	if stats, ok := t.entries.Get(key.String()); ok {
		stats.setOwner(uid, pids...)
	}
}

// Get returns the live FlowStats for key, if present.
func (t *Table) Get(key FlowKey) (*FlowStats, bool) {
	return t.entries.Get(key.String())
}

// SortType selects the comparator applied before paging a snapshot.
type SortType int

const (
	SortMostRecent SortType = iota
	SortMostBytes
	SortMostPackets
)

// Filter narrows which entries Snapshot considers. A zero Filter
// matches everything. PortLow/PortHigh restrict to flows whose src or
// dst port falls in [PortLow, PortHigh]; PortLow > PortHigh matches
// nothing.
type Filter struct {
	PortLow, PortHigh uint16
	HasPortRange      bool
	Transport         Transport
	HasTransport      bool
}

func (f Filter) matches(k FlowKey) bool {
	if f.HasTransport && k.Transport != f.Transport {
		return false
	}
	if f.HasPortRange {
		if f.PortLow > f.PortHigh {
			return false
		}
		inRange := func(p uint16) bool { return p >= f.PortLow && p <= f.PortHigh }
		if !inRange(k.SrcPort) && !inRange(k.DstPort) {
			return false
		}
	}
	return true
}

const pageSize = 20

// Snapshot returns a filtered, sorted, paged view of the table plus
// the total count of matching entries (before paging). page is
// 1-indexed; page <= 0 is treated as page 1.
func (t *Table) Snapshot(filter Filter, sort_ SortType, page int) ([]Entry, int) {
	var all []Entry

	t.keyIndex.ForEach(func(keyStr string, key FlowKey) bool {
		if !filter.matches(key) {
			return true
		}
		stats, ok := t.entries.Get(keyStr)
		if !ok {
			return true
		}
		all = append(all, Entry{Key: key, Stats: stats.snapshot()})
		return true
	})

	total := len(all)

	switch sort_ {
	case SortMostBytes:
		sort.Slice(all, func(i, j int) bool {
			bi := all[i].Stats.TransmittedBytes + all[i].Stats.ReceivedBytes
			bj := all[j].Stats.TransmittedBytes + all[j].Stats.ReceivedBytes
			if bi != bj {
				return bi > bj
			}
			return all[i].Key.String() < all[j].Key.String()
		})
	case SortMostPackets:
		sort.Slice(all, func(i, j int) bool {
			pi := all[i].Stats.TransmittedPackets + all[i].Stats.ReceivedPackets
			pj := all[j].Stats.TransmittedPackets + all[j].Stats.ReceivedPackets
			if pi != pj {
				return pi > pj
			}
			return all[i].Key.String() < all[j].Key.String()
		})
	default: // SortMostRecent
		sort.Slice(all, func(i, j int) bool {
			if !all[i].Stats.FinalTimestamp.Equal(all[j].Stats.FinalTimestamp) {
				return all[i].Stats.FinalTimestamp.After(all[j].Stats.FinalTimestamp)
			}
			return all[i].Key.String() < all[j].Key.String()
		})
	}

	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []Entry{}, total
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total
}

// Clear empties the table without resetting the ordinal dispenser.
func (t *Table) Clear() {
	t.entries.ForEach(func(key string, _ *FlowStats) bool {
		t.entries.Del(key)
		return true
	})
	t.keyIndex.ForEach(func(key string, _ FlowKey) bool {
		t.keyIndex.Del(key)
		return true
	})
}

// Len returns the number of distinct flows currently tracked.
func (t *Table) Len() int {
	return int(t.entries.Len())
}
