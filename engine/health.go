package engine

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CheckBroker verifies that the host of a networked broker URL resolves.
// An empty URL is accepted since the in-memory broker needs no host.
func CheckBroker(ctx context.Context, brokerURL string) error {
	if brokerURL == "" {
		return nil
	}
	host := brokerHost(brokerURL)
	if host == "" {
		return fmt.Errorf("broker url %q has no host", brokerURL)
	}
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return fmt.Errorf("resolve broker host %s: %w", host, err)
	}
	return nil
}

func brokerHost(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Hostname()
	}
	// host:port without a scheme
	raw = raw[strings.LastIndex(raw, "//")+1:]
	raw = strings.TrimPrefix(raw, "/")
	if h, _, err := net.SplitHostPort(raw); err == nil {
		return h
	}
	return strings.SplitN(raw, "/", 2)[0]
}
