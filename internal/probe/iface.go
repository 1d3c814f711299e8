package probe

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var errNoInterface = errors.New("no interface")

// findInterface returns the named interface, or the first up, non-loopback
// interface with an IPv4 network containing addr.
func findInterface(name string, addr netip.Addr) (*net.Interface, error) {
	if name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", name, err)
		}
		return ifi, nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		if containsAddr(addrs, addr) {
			return ifi, nil
		}
	}
	return nil, fmt.Errorf("%w on a network containing %s", errNoInterface, addr)
}

func containsAddr(addrs []net.Addr, addr netip.Addr) bool {
	ip := net.IP(addr.AsSlice())
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.To4() != nil && ipn.Contains(ip) {
			return true
		}
	}
	return false
}
