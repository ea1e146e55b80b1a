package socketresolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeProcFixture builds a minimal fake /proc tree with one listening
// TCP socket on localPort, owned by uid and held open by pid.
func writeProcFixture(t *testing.T, localPort uint16, uid, pid uint64, inode uint64) string {
	t.Helper()
	root := t.TempDir()

	netDir := filepath.Join(root, "net")
	require.NoError(t, os.MkdirAll(netDir, 0o755))

	hexPort := hexEncodePort(localPort)
	content := "  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode\n" +
		"   0: 00000000:" + hexPort + " 00000000:0000 0A 00000000:00000000 00:00000000 00000000  " +
		itoa(uid) + "        0 " + itoa(inode) + " 1 0000000000000000 100 0 0 10 0\n"

	require.NoError(t, os.WriteFile(filepath.Join(netDir, "tcp"), []byte(content), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(netDir, "tcp6"), []byte("  sl  local_address rem_address   st\n"), 0o644))

	pidDir := filepath.Join(root, itoa(pid), "fd")
	require.NoError(t, os.MkdirAll(pidDir, 0o755))
	require.NoError(t, os.Symlink("socket:["+itoa(inode)+"]", filepath.Join(pidDir, "3")))

	return root
}

func itoa(v uint64) string {
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

func hexEncodePort(p uint16) string {
	const hexdigits = "0123456789ABCDEF"
	return string([]byte{hexdigits[(p>>12)&0xF], hexdigits[(p>>8)&0xF], hexdigits[(p>>4)&0xF], hexdigits[p&0xF]})
}

func TestResolveFindsOwner(t *testing.T) {
	root := writeProcFixture(t, 8080, 1000, 4242, 987654)

	r := &Resolver{procRoot: root, ttl: 0, cache: make(map[cacheKey]cacheEntry), available: true}

	owner, ok := r.Resolve(TCP, 8080)
	require.True(t, ok)
	require.Equal(t, uint32(1000), owner.UID)
	require.Contains(t, owner.PIDs, uint32(4242))
}

func TestResolveMissingPortReturnsNotFound(t *testing.T) {
	root := writeProcFixture(t, 8080, 1000, 4242, 987654)
	r := &Resolver{procRoot: root, ttl: 0, cache: make(map[cacheKey]cacheEntry), available: true}

	_, ok := r.Resolve(TCP, 9999)
	require.False(t, ok)
}

func TestUnavailableResolverReturnsNothing(t *testing.T) {
	r := &Resolver{procRoot: "/does/not/exist", ttl: 0, cache: make(map[cacheKey]cacheEntry), available: false}
	owner, ok := r.Resolve(Both, 80)
	require.False(t, ok)
	require.Nil(t, owner)
}
