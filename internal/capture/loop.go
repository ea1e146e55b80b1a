package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"

	"trafficwatch/internal/flowtable"
	"trafficwatch/internal/metrics"
	"trafficwatch/internal/socketresolver"
)

// PortWindow is the active port filter applied while a capture is
// running; only packets with at least one endpoint inside
// [Low, High] are recorded.
type PortWindow struct {
	Low, High uint16
}

func (w PortWindow) contains(port uint16) bool {
	return port >= w.Low && port <= w.High
}

// Stats counts packets this loop has seen and discarded, surfaced
// through internal/metrics.
type Stats struct {
	Observed uint64
	Decoded  uint64
	Dropped  uint64
}

// Loop drives one capture device's packet stream into a flow table,
// resolving socket ownership as flows are created (component D).
type Loop struct {
	device     *Device
	table      *flowtable.Table
	resolver   *socketresolver.Resolver
	window     PortWindow
	localAddrs map[string]struct{}

	observed atomic.Uint64
	decoded  atomic.Uint64
	dropped  atomic.Uint64
}

// NewLoop builds a capture loop over an already-open device. localAddrs
// holds every address bound to the interface, used to classify packets
// as Outgoing/Incoming/Unknown (§4.D step 3).
func NewLoop(device *Device, table *flowtable.Table, resolver *socketresolver.Resolver, window PortWindow, localAddrs []string) *Loop {
	addrs := make(map[string]struct{}, len(localAddrs))
	for _, a := range localAddrs {
		addrs[a] = struct{}{}
	}
	return &Loop{device: device, table: table, resolver: resolver, window: window, localAddrs: addrs}
}

// Run consumes packets until ctx is cancelled or the device's packet
// source is exhausted (an offline file reaches EOF).
func (l *Loop) Run(ctx context.Context) error {
	packets := l.device.Packets().Packets()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			l.observed.Add(1)
			metrics.PacketsObserved.Inc()
			l.handlePacket(pkt)
		}
	}
}

func (l *Loop) handlePacket(pkt gopacket.Packet) {
	d, ok := decodePacket(pkt)
	if !ok {
		l.dropped.Add(1)
		metrics.PacketsDropped.Inc()
		return
	}
	l.decoded.Add(1)
	metrics.PacketsDecoded.Inc()

	now := pkt.Metadata().Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	dir := direction(d.srcAddr, d.dstAddr, l.localAddrs)

	inWindow := false
	if l.window.contains(d.srcPort) {
		inWindow = true
		key := flowtable.NewFlowKey(d.srcAddr, d.srcPort, d.dstAddr, d.dstPort, d.transport)
		stats := l.table.Observe(key, d.payloadBytes, 1, d.transport, dir, now)
		l.resolveOwner(key, d.srcPort, d.transport, stats != nil)
	}

	if l.window.contains(d.dstPort) {
		inWindow = true
		key := flowtable.NewFlowKey(d.dstAddr, d.dstPort, d.srcAddr, d.srcPort, d.transport)
		l.table.Observe(key, d.payloadBytes, 1, d.transport, invert(dir), now)
		l.resolveOwner(key, d.dstPort, d.transport, true)
	}

	if !inWindow {
		l.dropped.Add(1)
		metrics.PacketsDropped.Inc()
	}
}

// resolveOwner attaches socket ownership to key's entry, if the
// resolver can find one. Best-effort: ResolverUnavailable or a miss
// leaves the flow's owner unset (§7).
func (l *Loop) resolveOwner(key flowtable.FlowKey, localPort uint16, transport flowtable.Transport, created bool) {
	if l.resolver == nil || !created {
		return
	}
	family := socketresolver.TCP
	if transport == flowtable.UDP {
		family = socketresolver.UDP
	} else if transport != flowtable.TCP {
		return
	}
	owner, ok := l.resolver.Resolve(family, localPort)
	if !ok {
		return
	}
	l.table.SetOwner(key, owner.UID, owner.PIDs...)
}

// Stats returns a point-in-time copy of this loop's packet counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Observed: l.observed.Load(),
		Decoded:  l.decoded.Load(),
		Dropped:  l.dropped.Load(),
	}
}
