package wgconf

import (
	"context"
	"errors"
	"net/netip"
	"strings"
)

var errEmptyAddress = errors.New("empty address")

// HostResolver resolves hostnames that are not numeric address literals.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// ParseAddress parses a numeric IPv4 or IPv6 address literal. It never
// performs network I/O; hostnames are rejected.
func ParseAddress(text string) (netip.Addr, error) {
	if text == "" {
		return netip.Addr{}, &ParseError{Target: TargetAddress, Text: text, Err: errEmptyAddress}
	}

	s := text
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = s[1 : len(s)-1]
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, &ParseError{Target: TargetAddress, Text: text, Err: err}
	}
	return addr, nil
}
