package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

// checked in order, the first header carrying a usable public address wins
var forwardingHeaders = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// proxyAwareClientIP resolves the originating client address when the
// service sits behind a trusted proxy, falling back to the socket peer
// when no forwarding header carries a usable address.
func proxyAwareClientIP(r *http.Request) string {
	for _, header := range forwardingHeaders {
		if ip := publicForwardedAddr(r.Header.Get(header)); ip != "" {
			return ip
		}
	}
	return directClientIP(r)
}

// publicForwardedAddr extracts the client entry from a forwarding header
// value. X-Forwarded-For may carry the whole proxy chain; the client is
// the first entry. A private address here is a spoofing attempt or a
// misconfigured proxy, never the client, and is discarded.
func publicForwardedAddr(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	first, _, _ := strings.Cut(raw, ",")
	first = strings.TrimSpace(first)

	parsed := net.ParseIP(first)
	if parsed == nil || isPrivateIP(parsed) {
		return ""
	}
	return first
}

// directClientIP trusts only the socket peer address.
func directClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// no port component
		ip = r.RemoteAddr
	}

	ip = strings.TrimSpace(ip)

	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}

var privateBlocks = sync.OnceValue(func() []*net.IPNet {
	cidrs := []string{
		"127.0.0.0/8",    // IPv4 loopback
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"::1/128",        // IPv6 loopback
		"fc00::/7",       // IPv6 unique local
		"fe80::/10",      // IPv6 link-local
	}

	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		blocks = append(blocks, ipNet)
	}

	return blocks
})

func isPrivateIP(ip net.IP) bool {
	for _, block := range privateBlocks() {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
