package capture

import (
	"testing"

	"github.com/stretchr/testify/require"

	"trafficwatch/internal/flowtable"
)

// A single TCP packet whose both ports fall inside the active window
// produces two flow table entries: the forward key with transmitted
// bytes, the reverse key with received bytes, both timestamped alike.
func TestHandlePacketRecordsForwardAndReverseKeys(t *testing.T) {
	table := flowtable.NewTable()
	loop := &Loop{
		table:      table,
		window:     PortWindow{Low: 0, High: 65535},
		localAddrs: map[string]struct{}{"10.0.0.1": {}},
	}

	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 443, 50000, make([]byte, 500))
	loop.handlePacket(pkt)

	require.Equal(t, 2, table.Len())

	forward := flowtable.NewFlowKey("10.0.0.1", 443, "10.0.0.2", 50000, flowtable.TCP)
	reverse := flowtable.NewFlowKey("10.0.0.2", 50000, "10.0.0.1", 443, flowtable.TCP)

	fwd, ok := table.Get(forward)
	require.True(t, ok)
	rev, ok := table.Get(reverse)
	require.True(t, ok)

	require.Equal(t, uint64(520), fwd.TransmittedBytes)
	require.Equal(t, uint64(520), rev.ReceivedBytes)

	stats := loop.Stats()
	require.Equal(t, uint64(1), stats.Decoded)
	require.Equal(t, uint64(0), stats.Dropped)
}

// A packet with neither port in the active window is decoded but
// produces no flow table entries.
func TestHandlePacketOutsideWindowRecordsNothing(t *testing.T) {
	table := flowtable.NewTable()
	loop := &Loop{
		table:  table,
		window: PortWindow{Low: 1, High: 100},
	}

	pkt := buildTCPPacket(t, "10.0.0.1", "10.0.0.2", 443, 50000, make([]byte, 10))
	loop.handlePacket(pkt)

	require.Equal(t, 0, table.Len())
	require.Equal(t, uint64(1), loop.Stats().Dropped)
}
