// Package config loads the optional on-disk bootstrap configuration:
// default capture interface, port window, ingress throttle, and
// listen address. CLI flags always take precedence over the file, so
// every field is a pointer-free zero-value-means-unset struct merged
// by cmd/trafficwatchd after flag.Parse. Grounded on
// grimm-is-flywall's dependency on hashicorp/hcl/v2, simplified to
// hclsimple.DecodeFile since this module's config is a single flat
// block rather than flywall's versioned, migratable schema.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// File is the decoded shape of an HCL config file.
type File struct {
	Interface      string `hcl:"interface,optional"`
	PortLow        uint16 `hcl:"port_low,optional"`
	PortHigh       uint16 `hcl:"port_high,optional"`
	IngressKbps    int    `hcl:"ingress_kbps,optional"`
	IngressBurstKB int    `hcl:"ingress_burst_kb,optional"`
	ListenAddr     string `hcl:"listen_addr,optional"`
}

// Load decodes path as HCL. A missing file is not an error: it
// returns a zero File so the caller can fall back entirely to flags.
func Load(path string) (File, error) {
	if path == "" {
		return File{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return File{}, nil
	}
	var f File
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return File{}, fmt.Errorf("load config %q: %w", path, err)
	}
	return f, nil
}

// Merge layers flag values over f: any flag value other than its zero
// value wins; otherwise the file's value (which may itself be zero,
// i.e. unset) passes through.
func Merge(f File, iface string, portLow, portHigh uint16, ingressKbps, ingressBurstKB int, listenAddr string) File {
	out := f
	if iface != "" {
		out.Interface = iface
	}
	if portLow != 0 {
		out.PortLow = portLow
	}
	if portHigh != 0 {
		out.PortHigh = portHigh
	}
	if ingressKbps != 0 {
		out.IngressKbps = ingressKbps
	}
	if ingressBurstKB != 0 {
		out.IngressBurstKB = ingressBurstKB
	}
	if listenAddr != "" {
		out.ListenAddr = listenAddr
	}
	return out
}
