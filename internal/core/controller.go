// Package core owns the lifecycle of the flow table, socket resolver,
// capture loop and traffic controller, and dispatches the command
// enum of spec.md §6 (component G). Grounded on the teacher's
// internal/engine.Engine: a mutex-guarded capturing flag, a stopCh
// signalled on StopCapture, and lazy construction of the heavier
// collaborator (there stream.Manager, here trafficctl.Controller).
package core

import (
	"context"
	"fmt"
	"sync"

	"trafficwatch/internal/capture"
	"trafficwatch/internal/flowtable"
	"trafficwatch/internal/ifaceinfo"
	"trafficwatch/internal/metrics"
	"trafficwatch/internal/report"
	"trafficwatch/internal/socketresolver"
	"trafficwatch/internal/trafficctl"
)

// Controller mediates every ControlCommand against the flow table,
// capture loop and traffic controller.
type Controller struct {
	table    *flowtable.Table
	resolver *socketresolver.Resolver

	mu        sync.Mutex
	capturing bool
	iface     string
	device    *capture.Device
	cancel    context.CancelFunc
	done      chan struct{}

	tc *trafficctl.Controller
}

// New constructs a Controller with an empty flow table. The capture
// loop and traffic controller are not started until the first
// relevant command arrives.
func New() *Controller {
	return &Controller{
		table:    flowtable.NewTable(),
		resolver: socketresolver.New(),
	}
}

// Table exposes the underlying flow table for read-only use by the
// command transport's non-command endpoints (e.g. a plain text report).
func (c *Controller) Table() *flowtable.Table { return c.table }

// StartCapture opens the requested interface and begins posting
// observations into the flow table. It is an error to call this
// while a capture is already running.
func (c *Controller) StartCapture(cmd StartCaptureCmd) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return errKind(KindInternal, "capture already running on %q", c.iface)
	}

	localAddrs, err := ifaceinfo.LocalAddresses(cmd.Interface)
	if err != nil {
		return errKind(KindInterfaceNotFound, "%v", err)
	}

	device, err := capture.Open(cmd.Interface, 0)
	if err != nil {
		return errKind(KindCaptureOpenFailed, "%v", err)
	}

	window := capture.PortWindow{Low: cmd.PortLow, High: cmd.PortHigh}
	loop := capture.NewLoop(device, c.table, c.resolver, window, localAddrs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.device = device
	c.cancel = cancel
	c.done = done
	c.capturing = true
	c.iface = cmd.Interface

	go func() {
		defer close(done)
		defer device.Close()
		_ = loop.Run(ctx)
	}()

	if cmd.IngressKbps > 0 {
		if err := c.ensureTrafficControllerLocked(context.Background(), cmd.IngressKbps, cmd.IngressBurstKB); err != nil {
			return err
		}
	}

	return nil
}

// StartReplay opens a .pcap file and drains it through the same flow
// table the live capture path uses. It shares the capturing/device/
// done bookkeeping with StartCapture, so a replay and a live capture
// are mutually exclusive, and StopCapture ends either one. Replay
// never sets an interface name, so unless an earlier live capture
// selected one, ensureTrafficControllerLocked refuses to build the
// traffic controller and throttle commands fail.
func (c *Controller) StartReplay(cmd StartReplayCmd) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return errKind(KindInternal, "capture already running on %q", c.iface)
	}

	device, err := capture.OpenOffline(cmd.Path)
	if err != nil {
		return errKind(KindCaptureOpenFailed, "%v", err)
	}

	window := capture.PortWindow{Low: cmd.PortLow, High: cmd.PortHigh}
	loop := capture.NewLoop(device, c.table, c.resolver, window, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.device = device
	c.cancel = cancel
	c.done = done
	c.capturing = true

	go func() {
		defer close(done)
		defer device.Close()
		_ = loop.Run(ctx)
	}()

	return nil
}

// StopCapture signals the capture goroutine to terminate and waits
// for it to exit. A second call with no capture running is a no-op
// that returns nil, per spec.md §8.
func (c *Controller) StopCapture() error {
	c.mu.Lock()
	if !c.capturing {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	done := c.done
	c.capturing = false
	c.mu.Unlock()

	cancel()
	<-done
	return nil
}

// ClearFlows empties the flow table without resetting its ordinal
// dispenser.
func (c *Controller) ClearFlows() {
	c.table.Clear()
}

// Snapshot rolls the current table up per cmd and returns the result.
func (c *Controller) Snapshot(cmd SnapshotCmd) SnapshotResult {
	entries, total := c.table.Snapshot(cmd.Filter, cmd.Sort, cmd.Page)
	metrics.FlowsTracked.Set(float64(c.table.Len()))
	rows := report.Build(entries, cmd.View, cmd.Sort)
	return SnapshotResult{Rows: rows, Total: total}
}

// ThrottlePid lazily constructs the traffic controller, then installs
// or updates an HTB class rate-limiting the given PID.
func (c *Controller) ThrottlePid(ctx context.Context, cmd ThrottlePidCmd) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureTrafficControllerLocked(ctx, 0, 0); err != nil {
		metrics.ControlCommandFailures.WithLabelValues(string(errKindOf(err))).Inc()
		return err
	}
	already := c.tc.PidIsThrottled(cmd.Pid)
	if err := c.tc.ThrottlePid(ctx, cmd.Pid, cmd.Kbps); err != nil {
		metrics.ControlCommandFailures.WithLabelValues(string(KindControlInvocationFailed)).Inc()
		return errKind(KindControlInvocationFailed, "%v", err)
	}
	if !already {
		metrics.ActiveThrottles.WithLabelValues("pid").Inc()
	}
	return nil
}

// ThrottlePort lazily constructs the traffic controller, then
// installs egress and ingress filters for the given port.
func (c *Controller) ThrottlePort(ctx context.Context, cmd ThrottlePortCmd) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureTrafficControllerLocked(ctx, 0, 0); err != nil {
		metrics.ControlCommandFailures.WithLabelValues(string(errKindOf(err))).Inc()
		return err
	}
	already := c.tc.PortIsThrottled(cmd.Port)
	if err := c.tc.ThrottlePort(ctx, cmd.Port, cmd.Kbps, cmd.BurstKB); err != nil {
		metrics.ControlCommandFailures.WithLabelValues(string(KindControlInvocationFailed)).Inc()
		return errKind(KindControlInvocationFailed, "%v", err)
	}
	if !already {
		metrics.ActiveThrottles.WithLabelValues("port").Inc()
	}
	return nil
}

func (c *Controller) UnthrottlePid(ctx context.Context, cmd UnthrottlePidCmd) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tc == nil {
		return nil
	}
	was := c.tc.PidIsThrottled(cmd.Pid)
	if err := c.tc.UnthrottlePid(ctx, cmd.Pid); err != nil {
		metrics.ControlCommandFailures.WithLabelValues(string(KindControlInvocationFailed)).Inc()
		return errKind(KindControlInvocationFailed, "%v", err)
	}
	if was {
		metrics.ActiveThrottles.WithLabelValues("pid").Dec()
	}
	return nil
}

func (c *Controller) UnthrottlePort(ctx context.Context, cmd UnthrottlePortCmd) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tc == nil {
		return nil
	}
	was := c.tc.PortIsThrottled(cmd.Port)
	if err := c.tc.UnthrottlePort(ctx, cmd.Port); err != nil {
		metrics.ControlCommandFailures.WithLabelValues(string(KindControlInvocationFailed)).Inc()
		return errKind(KindControlInvocationFailed, "%v", err)
	}
	if was {
		metrics.ActiveThrottles.WithLabelValues("port").Dec()
	}
	return nil
}

// PidIsThrottled/PortIsThrottled report current throttle state; both
// are false before any traffic controller has been constructed.
func (c *Controller) PidIsThrottled(pid uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tc != nil && c.tc.PidIsThrottled(pid)
}

func (c *Controller) PortIsThrottled(port uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tc != nil && c.tc.PortIsThrottled(port)
}

// ensureTrafficControllerLocked constructs the traffic controller on
// first use. Callers must hold c.mu.
func (c *Controller) ensureTrafficControllerLocked(ctx context.Context, ingressKbps, ingressBurstKB int) error {
	if c.tc != nil {
		return nil
	}
	if !trafficctl.Supported() {
		return errKind(KindControlPrerequisiteMissing, "traffic control prerequisites (tc/cgcreate/cgclassify) not available on this host")
	}
	iface := c.iface
	if iface == "" {
		return errKind(KindInternal, "no interface selected; start a capture before issuing throttle commands")
	}
	tc, err := trafficctl.New(ctx, iface, ingressKbps, ingressBurstKB)
	if err != nil {
		return errKind(KindControlInvocationFailed, "%v", err)
	}
	c.tc = tc
	return nil
}

// Close stops any running capture and releases the traffic
// controller, triggering kernel cleanup of every object it still owns.
func (c *Controller) Close(ctx context.Context) error {
	_ = c.StopCapture()

	c.mu.Lock()
	tc := c.tc
	c.tc = nil
	c.mu.Unlock()

	if tc == nil {
		return nil
	}
	if err := tc.Close(ctx); err != nil {
		return fmt.Errorf("close traffic controller: %w", err)
	}
	return nil
}
