package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trafficwatch/internal/flowtable"
	"trafficwatch/internal/report"
)

func TestStopCaptureWithNoCaptureRunningIsNoop(t *testing.T) {
	c := New()
	require.NoError(t, c.StopCapture())
	require.NoError(t, c.StopCapture())
}

func TestSnapshotOnEmptyTableReturnsZeroTotal(t *testing.T) {
	c := New()
	result := c.Snapshot(SnapshotCmd{View: report.Detailed})
	require.Equal(t, 0, result.Total)
	require.Empty(t, result.Rows)
}

func TestClearFlowsEmptiesTable(t *testing.T) {
	c := New()
	key := flowtable.NewFlowKey("10.0.0.1", 1234, "10.0.0.2", 80, flowtable.TCP)
	c.table.Observe(key, 10, 1, flowtable.TCP, flowtable.Outgoing, time.Unix(0, 0))
	require.Equal(t, 1, c.table.Len())
	c.ClearFlows()
	require.Equal(t, 0, c.table.Len())
}

func TestThrottleStateFalseBeforeAnyThrottle(t *testing.T) {
	c := New()
	require.False(t, c.PidIsThrottled(1234))
	require.False(t, c.PortIsThrottled(8080))
}

func TestStartCaptureOnUnknownInterfaceReturnsInterfaceNotFound(t *testing.T) {
	// Interface existence is checked before the device is opened, so a
	// name absent from the host's link list surfaces InterfaceNotFound,
	// not CaptureOpenFailed.
	c := New()
	err := c.StartCapture(StartCaptureCmd{Interface: "no-such-iface-xyz", PortLow: 0, PortHigh: 65535})
	require.Error(t, err)
	cmdErr, ok := err.(*CommandError)
	require.True(t, ok)
	require.Equal(t, KindInterfaceNotFound, cmdErr.Kind)
}

func TestStartReplayOnMissingFileReturnsCaptureOpenFailed(t *testing.T) {
	c := New()
	err := c.StartReplay(StartReplayCmd{Path: "/no/such/capture.pcap", PortLow: 0, PortHigh: 65535})
	require.Error(t, err)
	cmdErr, ok := err.(*CommandError)
	require.True(t, ok)
	require.Equal(t, KindCaptureOpenFailed, cmdErr.Kind)
}

func TestThrottlePidWithoutStartedCaptureReturnsCommandError(t *testing.T) {
	// Without a prior StartCapture, ensureTrafficControllerLocked fails
	// either on the capability probe or the empty-interface check,
	// depending on whether tc/cgcreate/cgclassify are on $PATH; either
	// way ThrottlePid must surface a *CommandError, never a bare error.
	c := New()
	err := c.ThrottlePid(context.Background(), ThrottlePidCmd{Pid: 1, Kbps: 100})
	require.Error(t, err)
	_, ok := err.(*CommandError)
	require.True(t, ok)
}
