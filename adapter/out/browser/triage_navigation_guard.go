package browser

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"triage_server/core/port/out"
)

// NavigationGuard keeps the browser and the one-click client away from
// internal networks. Targets must be http(s) and must not resolve to a
// loopback, private, link-local or unspecified address.
type NavigationGuard struct {
	allowPrivate bool
	lookup       func(ctx context.Context, host string) ([]net.IPAddr, error)
}

func NewNavigationGuard(allowPrivate bool) *NavigationGuard {
	return &NavigationGuard{
		allowPrivate: allowPrivate,
		lookup:       net.DefaultResolver.LookupIPAddr,
	}
}

// Check returns an error wrapping out.ErrBlockedURL when raw may not be
// visited. Resolution failures are left to the navigation itself.
func (g *NavigationGuard) Check(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", out.ErrBlockedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", out.ErrBlockedURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: missing host", out.ErrBlockedURL)
	}
	if g == nil || g.allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return fmt.Errorf("%w: address %s", out.ErrBlockedURL, ip)
		}
		return nil
	}

	lower := strings.ToLower(strings.TrimSuffix(host, "."))
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".internal") {
		return fmt.Errorf("%w: host %s", out.ErrBlockedURL, host)
	}

	addrs, err := g.lookup(ctx, host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if blockedIP(a.IP) {
			return fmt.Errorf("%w: %s resolves to %s", out.ErrBlockedURL, host, a.IP)
		}
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}
