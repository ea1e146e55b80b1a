// Package capture drives the packet capture device, normalizes each
// decoded frame into a flow observation, and posts it to the flow
// table (component D).
package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

const (
	DefaultSnapLen = 65535
	DefaultTimeout = 100 * time.Millisecond
)

// Device wraps one pcap handle, whether it reads frames off a live
// interface or replays them from a previously captured file; Loop
// drives either the same way.
type Device struct {
	handle *pcap.Handle
	iface  string
	live   bool
}

// InterfaceInfo describes a network interface available for capture.
type InterfaceInfo struct {
	Name        string
	Description string
	Addresses   []string
}

// ListInterfaces returns all interfaces libpcap can open.
func ListInterfaces() ([]InterfaceInfo, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	out := make([]InterfaceInfo, 0, len(devs))
	for _, d := range devs {
		info := InterfaceInfo{Name: d.Name, Description: d.Description}
		for _, addr := range d.Addresses {
			info.Addresses = append(info.Addresses, addr.IP.String())
		}
		out = append(out, info)
	}
	return out, nil
}

// Open opens iface in promiscuous mode. snapLen <= 0 uses DefaultSnapLen.
func Open(iface string, snapLen int) (*Device, error) {
	if snapLen <= 0 {
		snapLen = DefaultSnapLen
	}
	handle, err := pcap.OpenLive(iface, int32(snapLen), true, DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("open live capture on %s: %w", iface, err)
	}
	return &Device{handle: handle, iface: iface, live: true}, nil
}

// OpenOffline opens a previously captured .pcap file, replaying its
// frames through the same Loop machinery as a live device (used by
// core.Controller.StartReplay). Stats on a replayed device always
// reports zero drops: libpcap never discards frames already on disk.
func OpenOffline(path string) (*Device, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap file %q: %w", path, err)
	}
	return &Device{handle: handle, iface: path, live: false}, nil
}

// Live reports whether this device reads frames off a real interface,
// as opposed to replaying a file opened with OpenOffline.
func (d *Device) Live() bool { return d.live }

// Packets returns a gopacket.PacketSource driving this device.
func (d *Device) Packets() *gopacket.PacketSource {
	return gopacket.NewPacketSource(d.handle, d.handle.LinkType())
}

// Interface returns the interface name this device was opened on.
func (d *Device) Interface() string { return d.iface }

// Stats returns libpcap's own received/dropped counters. Replayed
// devices have none to report: the file is read in full regardless of
// consumer speed.
func (d *Device) Stats() (received, dropped int, err error) {
	if !d.live {
		return 0, 0, nil
	}
	stats, err := d.handle.Stats()
	if err != nil {
		return 0, 0, err
	}
	return stats.PacketsReceived, stats.PacketsDropped, nil
}

// Close releases the capture handle.
func (d *Device) Close() {
	if d.handle != nil {
		d.handle.Close()
	}
}
