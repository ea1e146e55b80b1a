package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"trafficwatch/internal/core"
)

func TestDispatchClearFlowsReturnsOk(t *testing.T) {
	ctl := core.New()
	reply := dispatch(context.Background(), ctl, Envelope{ID: "req-1", Type: typeClearFlows})
	require.Equal(t, "req-1", reply.ID)
	require.Equal(t, typeOk, reply.Type)
}

func TestDispatchUnknownCommandReturnsErr(t *testing.T) {
	ctl := core.New()
	reply := dispatch(context.Background(), ctl, Envelope{ID: "req-2", Type: "bogus"})
	require.Equal(t, typeErr, reply.Type)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &payload))
	require.Equal(t, string(core.KindInternal), payload.Kind)
}

func TestDispatchStartCaptureWithMalformedPayloadReturnsErr(t *testing.T) {
	ctl := core.New()
	reply := dispatch(context.Background(), ctl, Envelope{ID: "req-3", Type: typeStartCapture, Payload: json.RawMessage(`not json`)})
	require.Equal(t, typeErr, reply.Type)
}

func TestDispatchSnapshotOnEmptyTableReturnsEmptyRows(t *testing.T) {
	ctl := core.New()
	payload, err := json.Marshal(snapshotRequest{View: "detailed"})
	require.NoError(t, err)
	reply := dispatch(context.Background(), ctl, Envelope{ID: "req-4", Type: typeSnapshot, Payload: payload})
	require.Equal(t, typeSnapshotReply, reply.Type)
	var result core.SnapshotResult
	require.NoError(t, json.Unmarshal(reply.Payload, &result))
	require.Equal(t, 0, result.Total)
	require.Empty(t, result.Rows)
}

func TestDispatchStartReplayOnMissingFileReturnsErr(t *testing.T) {
	ctl := core.New()
	payload, err := json.Marshal(startReplayRequest{Path: "/no/such/capture.pcap", PortLow: 0, PortHigh: 65535})
	require.NoError(t, err)
	reply := dispatch(context.Background(), ctl, Envelope{ID: "req-6", Type: typeStartReplay, Payload: payload})
	require.Equal(t, typeErr, reply.Type)
	var payloadOut errorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &payloadOut))
	require.Equal(t, string(core.KindCaptureOpenFailed), payloadOut.Kind)
}

func TestDispatchThrottlePidWithoutCaptureReturnsErr(t *testing.T) {
	ctl := core.New()
	payload, err := json.Marshal(throttlePidRequest{Pid: 1234, Kbps: 512})
	require.NoError(t, err)
	reply := dispatch(context.Background(), ctl, Envelope{ID: "req-5", Type: typeThrottlePid, Payload: payload})
	require.Equal(t, typeErr, reply.Type)
}
