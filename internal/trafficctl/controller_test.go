package trafficctl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	name string
	args []string
}

type fakeRunner struct {
	calls []recordedCall
	fail  map[string]bool // name+joined-args prefix that should error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, recordedCall{name: name, args: args})
	if f.fail[name] {
		return errFake
	}
	return nil
}

var errFake = errTestFake{}

type errTestFake struct{}

func (errTestFake) Error() string { return "fake command failure" }

func newTestController(t *testing.T) (*Controller, *fakeRunner) {
	t.Helper()
	fr := &fakeRunner{}
	c := &Controller{iface: "eth0", run: fr, state: newState("eth0")}
	return c, fr
}

// For an untracked PID, ThrottlePid creates the cgroup first; the classid write that
// follows targets the real /sys/fs/cgroup path, which is unwritable
// in a test sandbox, so the call is expected to fail there while
// still proving cgcreate ran with the right group name.
func TestThrottlePidCreatesCgroupOnFirstCall(t *testing.T) {
	c, fr := newTestController(t)

	err := c.ThrottlePid(context.Background(), 4242, 500)
	require.Error(t, err)

	require.GreaterOrEqual(t, len(fr.calls), 1)
	require.Equal(t, "cgcreate", fr.calls[0].name)
	require.Contains(t, fr.calls[0].args, "net_cls:sniffnet_4242")
}

func TestThrottlePortInstallsEgressAndIngressFilters(t *testing.T) {
	c, fr := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.ThrottlePort(ctx, 8080, 1000, 0))
	require.True(t, c.PortIsThrottled(8080))

	var sawEgress, sawIngress bool
	for _, call := range fr.calls {
		if call.name != "tc" {
			continue
		}
		for i, a := range call.args {
			if a == "sport" && i+1 < len(call.args) && call.args[i+1] == "8080" {
				sawEgress = true
			}
			if a == "dport" && i+1 < len(call.args) && call.args[i+1] == "8080" {
				sawIngress = true
			}
		}
	}
	require.True(t, sawEgress, "expected an egress filter matching sport 8080")
	require.True(t, sawIngress, "expected an ingress filter matching dport 8080")
}

func TestUnthrottlePortForgetsBothDirections(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.ThrottlePort(ctx, 443, 200, 0))
	require.True(t, c.PortIsThrottled(443))

	require.NoError(t, c.UnthrottlePort(ctx, 443))
	require.False(t, c.PortIsThrottled(443))
}

func TestUnthrottlePidOnUntrackedPidIsNoop(t *testing.T) {
	c, fr := newTestController(t)
	require.NoError(t, c.UnthrottlePid(context.Background(), 9999))
	require.Empty(t, fr.calls)
}

func TestIdentifierCounterNeverReused(t *testing.T) {
	s := newState("eth0")
	id1, _ := s.reserve(portEgress(1))
	s.commit(portEgress(1), id1)
	id2, _ := s.reserve(portEgress(2))
	s.commit(portEgress(2), id2)
	require.Less(t, id1, id2)

	s.forget(portEgress(1))
	id3, _ := s.reserve(portEgress(3))
	require.Greater(t, id3, id2)
}

func TestSupportedFalseOnNonLinuxOrMissingBinaries(t *testing.T) {
	// Supported() is an environment probe; with a PATH that holds none
	// of tc/cgcreate/cgclassify it must report false rather than
	// panicking, on Linux and elsewhere.
	t.Setenv("PATH", t.TempDir())
	require.NotPanics(t, func() { Supported() })
	require.False(t, Supported())
}
