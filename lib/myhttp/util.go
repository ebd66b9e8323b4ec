package myhttp

import (
	"net"
	"net/http"
	"strings"
)

// ClientAddress returns the caller's address. Each of the trustedProxies in front of this
// service appends the address it received from to X-Forwarded-For, so the caller is the entry
// appended by the outermost of them. Earlier entries come from the caller and are ignored.
func ClientAddress(r *http.Request, trustedProxies int) string {
	if trustedProxies > 0 {
		hops := forwardedHops(r)
		if len(hops) >= trustedProxies {
			return hops[len(hops)-trustedProxies]
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedHops(r *http.Request) []string {
	hops := []string{}
	for _, header := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(header, ",") {
			hop = strings.TrimSpace(hop)
			if hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}
