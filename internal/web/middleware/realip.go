package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// parseProxies accepts CIDRs ("10.0.0.0/8") and bare addresses
// ("127.0.0.1"). Invalid entries are logged and skipped.
func parseProxies(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "proxy", e, "error", err)
			continue
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out
}

// hostOnly strips the port from a RemoteAddr.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func trusted(addr string, proxies []netip.Prefix) bool {
	ip, err := netip.ParseAddr(hostOnly(addr))
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	for _, p := range proxies {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// forwardedClient returns the client address a proxy reported: X-Real-IP,
// else the first X-Forwarded-For entry. Unparseable values are ignored.
func forwardedClient(r *http.Request) (string, bool) {
	candidate := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if candidate == "" {
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		candidate = strings.TrimSpace(first)
	}
	if candidate == "" {
		return "", false
	}
	ip, err := netip.ParseAddr(candidate)
	if err != nil {
		return "", false
	}
	return ip.Unmap().String(), true
}

// TrustedRealIP rewrites RemoteAddr from proxy headers only when the
// connection comes from one of trustedProxies. Audit entries and rate
// limiting both key on the result, so untrusted clients cannot spoof it.
func TrustedRealIP(trustedProxies []string) func(http.Handler) http.Handler {
	proxies := parseProxies(trustedProxies)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(proxies) > 0 && trusted(r.RemoteAddr, proxies) {
				if ip, ok := forwardedClient(r); ok {
					r.RemoteAddr = ip
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
