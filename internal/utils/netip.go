package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseHostNoPort returns the host part of "ip:port", "[v6]:port" or "ip".
func ParseHostNoPort(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return strings.Trim(s, "[]")
}

// FirstForwardedFor returns the left-most entry of X-Forwarded-For.
func FirstForwardedFor(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// ClientIP resolves the caller address. Proxy headers (CF-Connecting-IP,
// X-Forwarded-For, X-Real-IP) are only read when trustProxy is set, which is
// only safe when the admin port is reachable through a trusted proxy alone.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, v := range []string{
			r.Header.Get("CF-Connecting-IP"),
			FirstForwardedFor(r.Header.Get("X-Forwarded-For")),
			r.Header.Get("X-Real-IP"),
		} {
			if ip := ParseHostNoPort(v); ip != "" {
				return ip
			}
		}
	}
	return ParseHostNoPort(r.RemoteAddr)
}

// IPMatcher matches addresses against exact IPs and CIDR prefixes.
type IPMatcher struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
	invalid  []string
}

func NewIPMatcher(list []string) *IPMatcher {
	m := &IPMatcher{addrs: make(map[netip.Addr]struct{})}
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			m.addrs[a.Unmap()] = struct{}{}
			continue
		}
		m.invalid = append(m.invalid, s)
	}
	return m
}

func (m *IPMatcher) IsEmpty() bool {
	return len(m.addrs) == 0 && len(m.prefixes) == 0
}

// Invalid lists the entries that were neither an IP nor a CIDR.
func (m *IPMatcher) Invalid() []string {
	return m.invalid
}

func (m *IPMatcher) Allow(ipStr string) bool {
	a, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	a = a.Unmap()
	if _, ok := m.addrs[a]; ok {
		return true
	}
	for _, p := range m.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
