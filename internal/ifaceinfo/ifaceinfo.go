// Package ifaceinfo enumerates interface addresses and best-effort
// link information, used by the capture loop to classify packet
// direction and by the command surface to list capture targets.
package ifaceinfo

import (
	"fmt"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// LocalAddresses returns every IPv4 and IPv6 address bound to iface,
// as textual IPs, for use as the capture loop's local-address set.
func LocalAddresses(iface string) ([]string, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return nil, fmt.Errorf("lookup interface %q: %w", iface, err)
	}

	var addrs []string
	for _, family := range []int{unix.AF_INET, unix.AF_INET6} {
		list, err := netlink.AddrList(link, family)
		if err != nil {
			continue
		}
		for _, a := range list {
			addrs = append(addrs, a.IP.String())
		}
	}
	return addrs, nil
}

// LinkInfo is best-effort driver/link detail for one interface.
type LinkInfo struct {
	Name   string
	Up     bool
	Driver string
}

// Link reports whether iface is up and, if ethtool cooperates, its
// driver name. Errors from ethtool are swallowed: link info is
// advisory, never required to start a capture.
func Link(iface string) LinkInfo {
	info := LinkInfo{Name: iface}

	link, err := netlink.LinkByName(iface)
	if err == nil {
		info.Up = link.Attrs().OperState == netlink.OperUp
	}

	eth, err := ethtool.NewEthtool()
	if err != nil {
		return info
	}
	defer eth.Close()

	if driver, err := eth.DriverName(iface); err == nil {
		info.Driver = driver
	}

	return info
}
