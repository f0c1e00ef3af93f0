//go:build linux

package bindcheck

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// Verify reports whether ip is assigned to a local interface, so a
// stale bind address surfaces once before the run instead of as a
// failure on every probe.
func Verify(ip net.IP) error {
	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return fmt.Errorf("bindcheck: listing interface addresses: %w", err)
	}
	for _, addr := range addrs {
		if addr.IP.Equal(ip) {
			return nil
		}
	}
	return fmt.Errorf("bindcheck: %s is not assigned to any local interface", ip)
}
