package web

import (
	"net"
	"net/http"

	"github.com/paulodiramos/tvdefleetonline-sub002/internal/core"
)

// withRequestMetadata records the client IP and User-Agent for audit entries.
// RemoteAddr has already been resolved by TrustedRealIP.
func withRequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := core.ContextWithIPAddress(r.Context(), ip)
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
