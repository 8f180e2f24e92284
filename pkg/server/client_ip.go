package server

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// proxyMatcher matches addresses against trusted proxy IPs and networks.
type proxyMatcher struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

// newProxyMatcher returns nil when entries holds nothing usable. Invalid
// entries are logged and skipped.
func newProxyMatcher(entries []string, logger *slog.Logger) *proxyMatcher {
	ips := make(map[string]struct{})
	var nets []*net.IPNet

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				if logger != nil {
					logger.Warn("invalid trusted proxy CIDR", "entry", entry, "error", err)
				}
				continue
			}
			nets = append(nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			if logger != nil {
				logger.Warn("invalid trusted proxy IP", "entry", entry)
			}
			continue
		}
		ips[ip.String()] = struct{}{}
	}

	if len(ips) == 0 && len(nets) == 0 {
		return nil
	}
	return &proxyMatcher{ips: ips, nets: nets}
}

func (m *proxyMatcher) IsTrusted(ip net.IP) bool {
	if m == nil || ip == nil {
		return false
	}
	if _, ok := m.ips[ip.String()]; ok {
		return true
	}
	for _, network := range m.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP resolves the address the per-IP session limit is charged to.
func (s *Server) clientIP(r *http.Request) string {
	ip := clientIPFromRequest(r, s.trustedProxies)
	if ip == nil {
		return ""
	}
	return ip.String()
}

// clientIPFromRequest walks forwarding headers from the right, skipping
// trusted hops. Headers are ignored unless the direct peer is trusted.
func clientIPFromRequest(r *http.Request, trusted *proxyMatcher) net.IP {
	remoteIP := parseForwardedIP(r.RemoteAddr)
	if remoteIP == nil {
		return nil
	}
	if !trusted.IsTrusted(remoteIP) {
		return remoteIP
	}

	forwarded := parseForwardedFor(r.Header.Get("Forwarded"))
	if len(forwarded) == 0 {
		forwarded = parseXForwardedFor(r.Header.Get("X-Forwarded-For"))
	}
	if len(forwarded) == 0 {
		return remoteIP
	}

	for i := len(forwarded) - 1; i >= 0; i-- {
		if !trusted.IsTrusted(forwarded[i]) {
			return forwarded[i]
		}
	}
	return forwarded[0]
}

// parseForwardedFor extracts the for= addresses of an RFC 7239 header.
func parseForwardedFor(header string) []net.IP {
	var out []net.IP
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(name), "for") {
				continue
			}
			if ip := parseForwardedIP(value); ip != nil {
				out = append(out, ip)
			}
		}
	}
	return out
}

func parseXForwardedFor(header string) []net.IP {
	var out []net.IP
	for _, part := range strings.Split(header, ",") {
		if ip := parseForwardedIP(part); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}

// parseForwardedIP accepts a bare IP, host:port, [v6]:port or a quoted
// form of those. "unknown" and obfuscated identifiers yield nil.
func parseForwardedIP(value string) net.IP {
	host := strings.Trim(strings.TrimSpace(value), "\"")
	if host == "" || strings.EqualFold(host, "unknown") {
		return nil
	}

	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end != -1 {
			host = host[1:end]
		}
	} else if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if zone := strings.Index(host, "%"); zone != -1 {
		host = host[:zone]
	}
	return net.ParseIP(host)
}
