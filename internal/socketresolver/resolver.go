// Package socketresolver attaches process and user ownership to a
// local port by scanning the host's socket tables, in the style of
// the procfs-based collectors in the retrieval pack (xtop, sockstats).
package socketresolver

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Family selects which socket tables a lookup considers.
type Family int

const (
	TCP Family = iota
	UDP
	Both
)

// Owner is the (uid, pids) pair attributed to a local port.
type Owner struct {
	UID  uint32
	PIDs []uint32
}

const defaultCacheTTL = 2 * time.Second

// Resolver maps (family, local port) to an Owner by reading
// /proc/net/{tcp,tcp6,udp,udp6} and walking /proc/<pid>/fd.
// Results are cached briefly; staleness is acceptable per spec.
type Resolver struct {
	procRoot string
	ttl      time.Duration

	mu        sync.Mutex
	cache     map[cacheKey]cacheEntry
	available bool
}

type cacheKey struct {
	family Family
	port   uint16
}

type cacheEntry struct {
	owner   *Owner
	fetched time.Time
}

// New constructs a Resolver reading from the standard /proc location.
func New() *Resolver {
	r := &Resolver{procRoot: "/proc", ttl: defaultCacheTTL, cache: make(map[cacheKey]cacheEntry)}
	if info, err := os.Stat(r.procRoot); err == nil && info.IsDir() {
		r.available = true
	}
	return r
}

// Available reports whether the resolver found a usable procfs at
// construction time. An unavailable resolver (ResolverUnavailable)
// degrades silently: Resolve reports no owner; it is never a fatal
// error.
func (r *Resolver) Available() bool { return r.available }

// Resolve returns the owner of the socket currently bound to
// localPort for the given family, or (nil, false) if none is found or
// the resolver is unavailable (ResolverUnavailable degrades silently
// to owner = None, per spec §7).
func (r *Resolver) Resolve(family Family, localPort uint16) (*Owner, bool) {
	key := cacheKey{family: family, port: localPort}

	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && time.Since(entry.fetched) < r.ttl {
		r.mu.Unlock()
		return entry.owner, entry.owner != nil
	}
	r.mu.Unlock()

	owner := r.resolveUncached(family, localPort)

	r.mu.Lock()
	r.cache[key] = cacheEntry{owner: owner, fetched: time.Now()}
	r.mu.Unlock()

	return owner, owner != nil
}

func (r *Resolver) resolveUncached(family Family, localPort uint16) *Owner {
	if !r.available {
		return nil
	}
	inode, uid, ok := r.findSocket(family, localPort)
	if !ok {
		return nil
	}
	pids := r.pidsForInode(inode)
	return &Owner{UID: uid, PIDs: pids}
}

// findSocket scans the relevant /proc/net/* tables for the first
// entry whose local port matches, returning its inode and owning uid.
func (r *Resolver) findSocket(family Family, localPort uint16) (inode uint64, uid uint32, ok bool) {
	for _, path := range socketTables(r.procRoot, family) {
		lines, err := readLines(path)
		if err != nil {
			continue
		}
		for i, line := range lines {
			if i == 0 {
				continue // header
			}
			fields := strings.Fields(line)
			if len(fields) < 10 {
				continue
			}
			port, perr := parseLocalPort(fields[1])
			if perr != nil || port != localPort {
				continue
			}
			u, uerr := strconv.ParseUint(fields[7], 10, 32)
			if uerr != nil {
				continue
			}
			ino, ierr := strconv.ParseUint(fields[9], 10, 64)
			if ierr != nil {
				continue
			}
			return ino, uint32(u), true
		}
	}
	return 0, 0, false
}

func socketTables(procRoot string, family Family) []string {
	var names []string
	if family == TCP || family == Both {
		names = append(names, "tcp", "tcp6")
	}
	if family == UDP || family == Both {
		names = append(names, "udp", "udp6")
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(procRoot, "net", n))
	}
	return out
}

// parseLocalPort parses the "<hexaddr>:<hexport>" form used in
// /proc/net/{tcp,udp}* local_address fields.
func parseLocalPort(field string) (uint16, error) {
	idx := strings.LastIndex(field, ":")
	if idx < 0 {
		return 0, fmt.Errorf("malformed local address %q", field)
	}
	v, err := strconv.ParseUint(field[idx+1:], 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// pidsForInode walks /proc/<pid>/fd looking for a symlink to
// "socket:[<inode>]", returning every PID that holds it open.
func (r *Resolver) pidsForInode(inode uint64) []uint32 {
	target := fmt.Sprintf("socket:[%d]", inode)

	entries, err := os.ReadDir(r.procRoot)
	if err != nil {
		return nil
	}

	var pids []uint32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		fdDir := filepath.Join(r.procRoot, e.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if link == target {
				pids = append(pids, uint32(pid))
				break
			}
		}
	}
	return pids
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
