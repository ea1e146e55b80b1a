package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.hcl"))
	require.NoError(t, err)
	require.Equal(t, File{}, f)
}

func TestLoadEmptyPathReturnsZeroValue(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)
	require.Equal(t, File{}, f)
}

func TestLoadDecodesHCLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trafficwatch.hcl")
	contents := `
interface = "eth0"
port_low = 1024
port_high = 65535
ingress_kbps = 2048
listen_addr = ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth0", f.Interface)
	require.Equal(t, uint16(1024), f.PortLow)
	require.Equal(t, uint16(65535), f.PortHigh)
	require.Equal(t, 2048, f.IngressKbps)
	require.Equal(t, ":9000", f.ListenAddr)
}

func TestMergePrefersFlagOverFile(t *testing.T) {
	f := File{Interface: "eth0", PortLow: 1024, ListenAddr: ":9000"}
	merged := Merge(f, "wlan0", 0, 0, 0, 0, "")
	require.Equal(t, "wlan0", merged.Interface)
	require.Equal(t, uint16(1024), merged.PortLow)
	require.Equal(t, ":9000", merged.ListenAddr)
}

// ListenAddr only changes when the caller passes a non-empty string, so
// a call site must only pass one when the user actually set -port (via
// flag.Visit), never a flag's non-zero default — otherwise the file's
// listen_addr could never survive a Merge call.
func TestMergeListenAddrEmptyPreservesFileValue(t *testing.T) {
	f := File{ListenAddr: ":9000"}
	merged := Merge(f, "", 0, 0, 0, 0, "")
	require.Equal(t, ":9000", merged.ListenAddr)
}
