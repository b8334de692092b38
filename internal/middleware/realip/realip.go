// Package realip resolves the client address of a request, honoring
// X-Forwarded-For only when the immediate peer is a trusted proxy.
package realip

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type contextKey struct{}

// Resolver extracts client IPs using a fixed set of trusted proxy prefixes.
type Resolver struct {
	trusted []netip.Prefix
}

// NewResolver parses proxies as CIDR prefixes or bare IPs. Entries that are
// neither are skipped and returned so the caller can report them.
func NewResolver(proxies []string) (*Resolver, []string) {
	var (
		r       Resolver
		invalid []string
	)
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if prefix, err := netip.ParsePrefix(p); err == nil {
			r.trusted = append(r.trusted, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(p); err == nil {
			r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		invalid = append(invalid, p)
	}
	return &r, invalid
}

// Middleware stores the resolved client IP in the request context.
func (res *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKey{}, res.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the rightmost untrusted hop of X-Forwarded-For when the
// peer is trusted, otherwise the peer address.
func (res *Resolver) ClientIP(r *http.Request) string {
	peer := hostOnly(r.RemoteAddr)
	if !res.isTrusted(peer) {
		return peer
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
		return peer
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !res.isTrusted(hop) {
			return hop
		}
	}
	return strings.TrimSpace(hops[0])
}

func (res *Resolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// FromRequest returns the client IP stored by Middleware, or the peer
// address when the middleware did not run.
func FromRequest(r *http.Request) string {
	if ip, ok := r.Context().Value(contextKey{}).(string); ok && ip != "" {
		return ip
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
