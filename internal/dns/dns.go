// Package dns resolves the coordinator host with a public-resolver fallback,
// so a client on a network with a broken local resolver can still reach the
// signaling endpoint.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Queried in parallel when the system resolver fails.
var publicDNS = []string{
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"9.9.9.9",         // Quad9
	"149.112.112.112", // Quad9
}

const (
	localTimeout = 1 * time.Second
	raceTimeout  = 2 * time.Second
)

// Lookup resolves a hostname, trying the system resolver first and racing
// the public resolvers on failure. IPv4 addresses are preferred.
func Lookup(ctx context.Context, host string) (string, error) {
	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	defer cancel()

	if ip, err := lookupWith(lctx, &net.Resolver{}, host); err == nil {
		return ip, nil
	}
	return raceLookup(ctx, host)
}

func lookupWith(ctx context.Context, r *net.Resolver, host string) (string, error) {
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errors.New("no IP addresses found")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

func raceLookup(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, raceTimeout)
	defer cancel()

	results := make(chan result, len(publicDNS))
	for _, server := range publicDNS {
		go func(server string) {
			r := &net.Resolver{
				PreferGo: true,
				Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
					d := new(net.Dialer)
					return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
				},
			}
			ip, err := lookupWith(ctx, r, host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	failures := 0
	for range publicDNS {
		select {
		case res := <-results:
			if res.err == nil && res.ip != "" {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", errors.New("dns lookup timed out during public resolver race")
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public resolvers failed", host, failures)
}
