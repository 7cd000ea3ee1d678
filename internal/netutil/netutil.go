// Package netutil finds the host addresses an operator can reach the API on.
package netutil

import (
	"net"
	"strconv"
)

// tailnet is the CGNAT range Tailscale assigns from.
var tailnet = &net.IPNet{IP: net.IPv4(100, 64, 0, 0).To4(), Mask: net.CIDRMask(10, 32)}

// LANIP returns the first non-loopback IPv4 address outside the tailnet.
func LANIP() string {
	return firstIPv4(interfaceAddrs(), func(ip net.IP) bool { return !tailnet.Contains(ip) })
}

// TailscaleIP returns the first IPv4 address inside 100.64.0.0/10.
func TailscaleIP() string {
	return firstIPv4(interfaceAddrs(), tailnet.Contains)
}

// ListenURLs lists the URLs a server bound to bind:port answers on. A
// wildcard bind expands to localhost plus the LAN and tailnet addresses.
func ListenURLs(bind string, port int) []string {
	p := strconv.Itoa(port)
	if bind != "" && bind != "0.0.0.0" && bind != "::" {
		return []string{"http://" + net.JoinHostPort(bind, p)}
	}
	urls := []string{"http://localhost:" + p}
	for _, ip := range []string{LANIP(), TailscaleIP()} {
		if ip != "" {
			urls = append(urls, "http://"+net.JoinHostPort(ip, p))
		}
	}
	return urls
}

func interfaceAddrs() []net.Addr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, addrs...)
	}
	return out
}

func firstIPv4(addrs []net.Addr, keep func(net.IP) bool) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil && keep(ip4) {
			return ip4.String()
		}
	}
	return ""
}
