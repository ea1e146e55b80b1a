package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trafficwatch/internal/flowtable"
)

func entry(key flowtable.FlowKey, direction flowtable.Direction, txBytes, rxBytes uint64, ownerUID uint32, pids ...uint32) flowtable.Entry {
	var owner *flowtable.OwnerRecord
	if len(pids) > 0 {
		owner = &flowtable.OwnerRecord{UID: ownerUID, PIDs: make(map[uint32]struct{})}
		for _, p := range pids {
			owner.PIDs[p] = struct{}{}
		}
	}
	return flowtable.Entry{
		Key: key,
		Stats: flowtable.Snapshot{
			TransmittedBytes:   txBytes,
			TransmittedPackets: 1,
			ReceivedBytes:      rxBytes,
			ReceivedPackets:    1,
			Direction:          direction,
			Owner:              owner,
			InitialTimestamp:   time.Unix(0, 0),
			FinalTimestamp:     time.Unix(0, 0),
		},
	}
}

func TestBuildProcessCreditsEveryOwningPID(t *testing.T) {
	shared := flowtable.NewFlowKey("10.0.0.1", 80, "10.0.0.2", 9000, flowtable.TCP)
	entries := []flowtable.Entry{
		entry(shared, flowtable.Outgoing, 100, 0, 1000, 11, 22),
	}

	rows := Build(entries, Process, flowtable.SortMostBytes)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, uint64(100), r.BytesOut)
		require.False(t, r.PIDUnknown)
	}
}

func TestBuildProcessUnknownBucketForOwnerlessFlow(t *testing.T) {
	key := flowtable.NewFlowKey("10.0.0.1", 80, "10.0.0.2", 9000, flowtable.TCP)
	entries := []flowtable.Entry{entry(key, flowtable.Outgoing, 50, 0, 0)}

	rows := Build(entries, Process, flowtable.SortMostBytes)
	require.Len(t, rows, 1)
	require.True(t, rows[0].PIDUnknown)
	require.Equal(t, "Unknown", rows[0].Label)
}

func TestBuildPortUsesSrcPortForOutgoingAndDstForIncoming(t *testing.T) {
	out := flowtable.NewFlowKey("10.0.0.1", 443, "10.0.0.2", 50000, flowtable.TCP)
	in := flowtable.NewFlowKey("10.0.0.3", 60000, "10.0.0.1", 22, flowtable.TCP)
	entries := []flowtable.Entry{
		entry(out, flowtable.Outgoing, 100, 0, 0),
		entry(in, flowtable.Incoming, 0, 200, 0),
	}

	rows := Build(entries, Port, flowtable.SortMostBytes)
	byLabel := map[string]Row{}
	for _, r := range rows {
		byLabel[r.Label] = r
	}
	require.Equal(t, uint64(100), byLabel["443"].BytesOut)
	require.Equal(t, uint64(200), byLabel["22"].BytesIn)
}

func TestBuildPortUnknownDirectionCreditsBothPorts(t *testing.T) {
	key := flowtable.NewFlowKey("10.0.0.1", 111, "10.0.0.2", 222, flowtable.ICMP)
	entries := []flowtable.Entry{entry(key, flowtable.Unknown, 30, 0, 0)}

	rows := Build(entries, Port, flowtable.SortMostBytes)
	require.Len(t, rows, 2)
}

func TestBuildUserSentinelForOwnerlessFlow(t *testing.T) {
	key := flowtable.NewFlowKey("10.0.0.1", 1, "10.0.0.2", 2, flowtable.TCP)
	entries := []flowtable.Entry{entry(key, flowtable.Outgoing, 10, 0, 0)}

	rows := Build(entries, User, flowtable.SortMostBytes)
	require.Len(t, rows, 1)
	require.True(t, rows[0].UIDUnknown)
}

func TestBuildDetailedOneRowPerFlowKey(t *testing.T) {
	k1 := flowtable.NewFlowKey("10.0.0.1", 1, "10.0.0.2", 2, flowtable.TCP)
	k2 := flowtable.NewFlowKey("10.0.0.3", 3, "10.0.0.4", 4, flowtable.TCP)
	entries := []flowtable.Entry{
		entry(k1, flowtable.Outgoing, 10, 0, 0),
		entry(k2, flowtable.Outgoing, 20, 0, 0),
	}

	rows := Build(entries, Detailed, flowtable.SortMostBytes)
	require.Len(t, rows, 2)
	require.Equal(t, k2, rows[0].FlowKey) // 20 > 10
}

func TestWriteTextFormatsHeaderAndBlankLine(t *testing.T) {
	key := flowtable.NewFlowKey("10.0.0.1", 443, "10.0.0.2", 50000, flowtable.TCP)
	entries := []flowtable.Entry{entry(key, flowtable.Outgoing, 500, 0, 0)}

	var sb strings.Builder
	require.NoError(t, WriteText(&sb, entries))

	out := sb.String()
	require.Contains(t, out, "Address: 10.0.0.1:443\n")
	require.True(t, strings.HasSuffix(out, "\n\n"))
}
