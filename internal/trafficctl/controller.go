package trafficctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultBurstKB is the burst size used for port throttling when the
// caller does not supply one (spec.md §4.F throttle_port default).
const DefaultBurstKB = 256

const cgroupRoot = "/sys/fs/cgroup/net_cls"

// Controller programs HTB queueing, ingress policing and cgroup
// classification for one interface. Construction installs the root
// and ingress disciplines; Close tears them down along with every
// target still committed in the identifier table.
type Controller struct {
	iface string
	run   runner
	state *state

	mu sync.Mutex // serializes throttle/unthrottle against Close
}

// New constructs a Controller over iface, performing the one-time
// kernel setup from spec.md §4.F steps 1-5. ingressRateKbps of 0
// skips step 4 (no ingress policing filter installed); ingressBurstKB
// of 0 uses DefaultBurstKB.
func New(ctx context.Context, iface string, ingressRateKbps, ingressBurstKB int) (*Controller, error) {
	c := &Controller{iface: iface, run: execRunner{}, state: newState(iface)}
	if err := c.setup(ctx, ingressRateKbps, ingressBurstKB); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) setup(ctx context.Context, ingressRateKbps, ingressBurstKB int) error {
	// Step 1: best-effort delete any previous root/ingress qdiscs.
	bestEffort(ctx, c.run, "tc", "qdisc", "del", "dev", c.iface, "root")
	bestEffort(ctx, c.run, "tc", "qdisc", "del", "dev", c.iface, "ingress")

	// Step 2: HTB root qdisc, handle 1:.
	if err := mandatory(ctx, c.run, "tc", "qdisc", "add", "dev", c.iface, "root", "handle", "1:", "htb"); err != nil {
		return fmt.Errorf("install root qdisc: %w", err)
	}

	// Step 3: ingress qdisc.
	if err := mandatory(ctx, c.run, "tc", "qdisc", "add", "dev", c.iface, "ingress"); err != nil {
		return fmt.Errorf("install ingress qdisc: %w", err)
	}

	// Step 4: optional ingress policing filter.
	if ingressRateKbps > 0 {
		burst := ingressBurstKB
		if burst <= 0 {
			burst = DefaultBurstKB
		}
		if err := mandatory(ctx, c.run, "tc", "filter", "add", "dev", c.iface,
			"parent", "ffff:", "protocol", "ip", "prio", "1", "u32",
			"match", "u32", "0", "0",
			"police", "rate", fmt.Sprintf("%dkbit", ingressRateKbps), "burst", fmt.Sprintf("%dk", burst), "drop", "flowid", ":1",
		); err != nil {
			return fmt.Errorf("install ingress policing filter: %w", err)
		}
	}

	// Step 5: cgroup classifier redirecting packets to their class by classid.
	if err := mandatory(ctx, c.run, "tc", "filter", "add", "dev", c.iface, "parent", "1:", "handle", "1:", "cgroup"); err != nil {
		return fmt.Errorf("install cgroup classifier: %w", err)
	}

	return nil
}

// ThrottlePid installs or updates an egress HTB class rate-limiting
// everything the given PID sends, via a net_cls cgroup.
func (c *Controller) ThrottlePid(ctx context.Context, pid uint32, kbps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := pidTarget(pid)
	id, committed := c.state.reserve(target)

	if !committed {
		if err := c.createCgroup(ctx, pid, id); err != nil {
			return err
		}
	}

	classid := fmt.Sprintf("1:%d", id)
	// Rethrottle idempotence: drop any existing class at this id first.
	bestEffort(ctx, c.run, "tc", "class", "del", "dev", c.iface, "classid", classid)

	if err := mandatory(ctx, c.run, "tc", "class", "add", "dev", c.iface,
		"parent", "1:", "classid", classid, "htb", "rate", fmt.Sprintf("%dkbps", kbps),
	); err != nil {
		return fmt.Errorf("add htb class for pid %d: %w", pid, err)
	}

	c.state.commit(target, id)
	return nil
}

func (c *Controller) createCgroup(ctx context.Context, pid uint32, id uint16) error {
	group := fmt.Sprintf("net_cls:sniffnet_%d", pid)
	if err := mandatory(ctx, c.run, "cgcreate", "-g", group); err != nil {
		return fmt.Errorf("create cgroup for pid %d: %w", pid, err)
	}

	classidPath := filepath.Join(cgroupRoot, fmt.Sprintf("sniffnet_%d", pid), "net_cls.classid")
	classidValue := fmt.Sprintf("0x1%04x\n", id)
	if err := os.WriteFile(classidPath, []byte(classidValue), 0o644); err != nil {
		return fmt.Errorf("write net_cls.classid for pid %d: %w", pid, err)
	}

	if err := mandatory(ctx, c.run, "cgclassify", "-g", group, fmt.Sprintf("%d", pid)); err != nil {
		return fmt.Errorf("classify pid %d into cgroup: %w", pid, err)
	}
	return nil
}

// ThrottlePort installs an egress and an ingress filter policing
// traffic on the given transport-layer port. burstKB of 0 uses
// DefaultBurstKB.
func (c *Controller) ThrottlePort(ctx context.Context, port uint16, kbps int, burstKB int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if burstKB <= 0 {
		burstKB = DefaultBurstKB
	}

	egress := portEgress(port)
	ingress := portIngress(port)

	egressID, _ := c.state.reserve(egress)
	bestEffort(ctx, c.run, "tc", "filter", "del", "dev", c.iface, "parent", "1:", "prio", fmt.Sprintf("%d", egressID))
	if err := mandatory(ctx, c.run, "tc", "filter", "add", "dev", c.iface,
		"parent", "1:", "prio", fmt.Sprintf("%d", egressID), "protocol", "ip", "u32",
		"match", "ip", "sport", fmt.Sprintf("%d", port), "0xffff",
		"police", "rate", fmt.Sprintf("%dkbit", kbps), "burst", fmt.Sprintf("%dk", burstKB), "drop", "flowid", ":1",
	); err != nil {
		return fmt.Errorf("add egress filter for port %d: %w", port, err)
	}
	c.state.commit(egress, egressID)

	ingressID, _ := c.state.reserve(ingress)
	bestEffort(ctx, c.run, "tc", "filter", "del", "dev", c.iface, "parent", "ffff:", "prio", fmt.Sprintf("%d", ingressID))
	if err := mandatory(ctx, c.run, "tc", "filter", "add", "dev", c.iface,
		"parent", "ffff:", "prio", fmt.Sprintf("%d", ingressID), "protocol", "ip", "u32",
		"match", "ip", "dport", fmt.Sprintf("%d", port), "0xffff",
		"police", "rate", fmt.Sprintf("%dkbit", kbps), "burst", fmt.Sprintf("%dk", burstKB), "drop", "flowid", ":1",
	); err != nil {
		return fmt.Errorf("add ingress filter for port %d: %w", port, err)
	}
	c.state.commit(ingress, ingressID)

	return nil
}

// UnthrottlePid removes the HTB class for pid, if tracked. The cgroup
// itself is left in place, matching the original's documented
// shortcut (removing the class is sufficient to stop shaping).
func (c *Controller) UnthrottlePid(ctx context.Context, pid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := pidTarget(pid)
	id, ok := c.state.forget(target)
	if !ok {
		return nil
	}
	bestEffort(ctx, c.run, "tc", "class", "del", "dev", c.iface, "classid", fmt.Sprintf("1:%d", id))
	return nil
}

// UnthrottlePort removes both the egress and ingress filters for
// port, if tracked.
func (c *Controller) UnthrottlePort(ctx context.Context, port uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if egressID, ok := c.state.forget(portEgress(port)); ok {
		bestEffort(ctx, c.run, "tc", "filter", "del", "dev", c.iface, "parent", "1:", "prio", fmt.Sprintf("%d", egressID))
	}
	if ingressID, ok := c.state.forget(portIngress(port)); ok {
		bestEffort(ctx, c.run, "tc", "filter", "del", "dev", c.iface, "parent", "ffff:", "prio", fmt.Sprintf("%d", ingressID))
	}
	return nil
}

// PidIsThrottled reports whether pid currently has a committed HTB class.
func (c *Controller) PidIsThrottled(pid uint32) bool {
	return c.state.has(pidTarget(pid))
}

// PortIsThrottled reports whether port is throttled in both
// directions, per spec.md §4.F.
func (c *Controller) PortIsThrottled(port uint16) bool {
	return c.state.has(portEgress(port)) && c.state.has(portIngress(port))
}

// Close releases every kernel object still recorded for this
// controller, then the root and ingress queue disciplines themselves.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, target := range c.state.snapshotTargets() {
		id, _ := c.state.forget(target)
		switch target.Kind {
		case Pid:
			bestEffort(ctx, c.run, "tc", "class", "del", "dev", c.iface, "classid", fmt.Sprintf("1:%d", id))
		case PortEgress:
			bestEffort(ctx, c.run, "tc", "filter", "del", "dev", c.iface, "parent", "1:", "prio", fmt.Sprintf("%d", id))
		case PortIngress:
			bestEffort(ctx, c.run, "tc", "filter", "del", "dev", c.iface, "parent", "ffff:", "prio", fmt.Sprintf("%d", id))
		}
	}

	bestEffort(ctx, c.run, "tc", "qdisc", "del", "dev", c.iface, "root")
	bestEffort(ctx, c.run, "tc", "qdisc", "del", "dev", c.iface, "ingress")
	return nil
}
