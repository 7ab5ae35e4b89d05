// Package privacy reduces client addresses to network prefixes before they
// reach logs, audit records or anomaly reports.
package privacy

import (
	"net/netip"
)

const (
	ipv4Prefix = 24
	ipv6Prefix = 48
)

// AnonymizeIP masks IPv4 to its /24 and IPv6 to its /48 network, so
// "192.0.2.47" becomes "192.0.2.0" and "2001:db8:85a3::7334" becomes "2001:db8:85a3::".
// Empty input yields "unknown"; unparseable input yields "invalid".
func AnonymizeIP(ip string) string {
	prefix, ok := Network(ip)
	if !ok {
		if ip == "" || ip == "unknown" {
			return "unknown"
		}
		return "invalid"
	}
	return prefix.Addr().String()
}

// Network returns the masked network the address belongs to.
// IPv4-mapped IPv6 addresses are treated as IPv4.
func Network(ip string) (netip.Prefix, bool) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	bits := ipv6Prefix
	if addr.Is4() {
		bits = ipv4Prefix
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return netip.Prefix{}, false
	}
	return prefix, true
}
