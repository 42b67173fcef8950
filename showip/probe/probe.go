// Package probe takes snapshots of the host: the addresses of its network
// interfaces and whether the display hardware answers on the I2C bus.
package probe

import (
	"context"
	"net"

	"git.unix.lgbt/diamondburned/showip/showip"
	"git.unix.lgbt/diamondburned/showip/showip/i2c"
	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// MaxAddresses is the most addresses a snapshot holds.
const MaxAddresses = 10

// Options configures a Probe.
type Options struct {
	// IPv6 reports IPv6 addresses instead of IPv4 ones.
	IPv6 bool
	// Bus and Addr locate the I/O expander of the display.
	Bus  int
	Addr uint16
}

// DefaultOptions returns the options matching the usual wiring of the
// display: an MCP23017 at 0x20 on bus 1.
func DefaultOptions() Options {
	return Options{Bus: 1, Addr: 0x20}
}

// Probe lists interface addresses using gopsutil.
type Probe struct {
	opts       Options
	interfaces func(ctx context.Context) (psnet.InterfaceStatList, error)
	detect     func(bus int, addr uint16) bool
}

var _ showip.Probe = (*Probe)(nil)

// New creates a new probe.
func New(opts Options) *Probe {
	return &Probe{
		opts:       opts,
		interfaces: psnet.InterfacesWithContext,
		detect:     i2c.Detect,
	}
}

// Snapshot returns the addresses of all interfaces in the order the kernel
// lists them. IPv4 loopback is left out.
func (p *Probe) Snapshot(ctx context.Context) (showip.Facts, error) {
	ifaces, err := p.interfaces(ctx)
	if err != nil {
		return showip.Facts{}, errors.Wrap(err, "failed to list interfaces")
	}

	var facts showip.Facts

	for _, iface := range ifaces {
		for _, addr := range iface.Addrs {
			ip := parseAddr(addr.Addr)
			if ip == nil || !p.wants(ip) {
				continue
			}

			facts.Addresses = append(facts.Addresses, ip.String())
			if len(facts.Addresses) == MaxAddresses {
				return facts, nil
			}
		}
	}

	return facts, nil
}

func (p *Probe) wants(ip net.IP) bool {
	v4 := ip.To4()

	if p.opts.IPv6 {
		return v4 == nil
	}

	return v4 != nil && !v4.Equal(net.IPv4(127, 0, 0, 1))
}

// parseAddr parses an address as gopsutil reports it, which is usually in
// CIDR notation.
func parseAddr(addr string) net.IP {
	if ip, _, err := net.ParseCIDR(addr); err == nil {
		return ip
	}
	return net.ParseIP(addr)
}

// DisplayPresent returns true if the display's I/O expander acknowledges a
// read on the I2C bus.
func (p *Probe) DisplayPresent() bool {
	return p.detect(p.opts.Bus, p.opts.Addr)
}
