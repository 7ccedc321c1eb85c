package wgconf

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

func TestParseAddress(t *testing.T) {
	for _, text := range []string{"10.0.0.1", "::1", "[fd00::1]", "2001:db8::2"} {
		if _, err := ParseAddress(text); err != nil {
			t.Fatalf("expected %q to parse, got %v", text, err)
		}
	}

	for _, text := range []string{"", "example.com", "10.0.0.256", "1.2.3"} {
		_, err := ParseAddress(text)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected *ParseError for %q, got %v", text, err)
		}
		if parseErr.Target != TargetAddress || parseErr.Text != text {
			t.Fatalf("expected address parse error for %q, got %v", text, parseErr)
		}
	}
}

func TestParseInetNetwork(t *testing.T) {
	tests := []struct {
		text string
		want string
		bits int
	}{
		{text: "10.0.0.2/24", want: "10.0.0.2/24", bits: 24},
		{text: "10.0.0.2", want: "10.0.0.2/32", bits: 32},
		{text: "fd00::1/64", want: "fd00::1/64", bits: 64},
		{text: "::/0", want: "::/0", bits: 0},
	}
	for _, tt := range tests {
		network, err := ParseInetNetwork(tt.text)
		if err != nil {
			t.Fatalf("expected %q to parse, got %v", tt.text, err)
		}
		if network.String() != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, network.String())
		}
		if network.Bits() != tt.bits {
			t.Fatalf("expected %d bits, got %d", tt.bits, network.Bits())
		}
	}

	for _, text := range []string{"10.0.0.0/33", "fd00::/129", "10.0.0.0/x", "host/24"} {
		_, err := ParseInetNetwork(text)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) || parseErr.Target != TargetNetwork {
			t.Fatalf("expected network parse error for %q, got %v", text, err)
		}
	}
}

func TestInetNetworkIPNetIsMasked(t *testing.T) {
	ipNet := MustParseInetNetwork("10.0.0.2/24").IPNet()
	if ipNet.String() != "10.0.0.0/24" {
		t.Fatalf("expected 10.0.0.0/24, got %s", ipNet.String())
	}
}

func TestParseInetEndpoint(t *testing.T) {
	tests := []struct {
		text     string
		host     string
		port     uint16
		resolved bool
		str      string
	}{
		{text: "192.0.2.1:51820", host: "192.0.2.1", port: 51820, resolved: true, str: "192.0.2.1:51820"},
		{text: "[2001:db8::1]:443", host: "2001:db8::1", port: 443, resolved: true, str: "[2001:db8::1]:443"},
		{text: "vpn.example.com:51820", host: "vpn.example.com", port: 51820, resolved: false, str: "vpn.example.com:51820"},
		{text: "[fe80::1%eth0]:51820", host: "fe80::1%eth0", port: 51820, resolved: true, str: "[fe80::1%eth0]:51820"},
	}
	for _, tt := range tests {
		endpoint, err := ParseInetEndpoint(tt.text)
		if err != nil {
			t.Fatalf("expected %q to parse, got %v", tt.text, err)
		}
		if endpoint.Host() != tt.host || endpoint.Port() != tt.port {
			t.Fatalf("expected %s:%d, got %s:%d", tt.host, tt.port, endpoint.Host(), endpoint.Port())
		}
		if endpoint.IsResolved() != tt.resolved {
			t.Fatalf("expected resolved=%t for %q", tt.resolved, tt.text)
		}
		if endpoint.String() != tt.str {
			t.Fatalf("expected %q, got %q", tt.str, endpoint.String())
		}
	}

	for _, text := range []string{"vpn.example.com", "1.2.3.4:99999", "host:port", "a/b:1", ":51820", "bad_host!:1", "2001:db8::1:51820", "[192.0.2.1]:51820", "vpn.example.com:"} {
		_, err := ParseInetEndpoint(text)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) || parseErr.Target != TargetEndpoint {
			t.Fatalf("expected endpoint parse error for %q, got %v", text, err)
		}
	}
}

func TestInetEndpointResolve(t *testing.T) {
	ctx := context.Background()

	numeric, err := ParseInetEndpoint("192.0.2.1:1")
	if err != nil {
		t.Fatalf("ParseInetEndpoint failed: %v", err)
	}
	addrPort, err := numeric.Resolve(ctx, nil)
	if err != nil {
		t.Fatalf("expected numeric endpoint to resolve without a resolver, got %v", err)
	}
	if addrPort != netip.MustParseAddrPort("192.0.2.1:1") {
		t.Fatalf("expected 192.0.2.1:1, got %s", addrPort)
	}

	named, err := ParseInetEndpoint("vpn.example.com:51820")
	if err != nil {
		t.Fatalf("ParseInetEndpoint failed: %v", err)
	}
	if _, err := named.Resolve(ctx, nil); err == nil {
		t.Fatalf("expected error resolving hostname without a resolver")
	}
	if _, err := named.Resolve(ctx, staticResolver{}); err == nil {
		t.Fatalf("expected error for unknown host")
	}

	resolver := staticResolver{"vpn.example.com": {netip.MustParseAddr("2001:db8::5")}}
	addrPort, err = named.Resolve(ctx, resolver)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if addrPort != netip.MustParseAddrPort("[2001:db8::5]:51820") {
		t.Fatalf("expected [2001:db8::5]:51820, got %s", addrPort)
	}
}

func TestInetEndpointEqualIgnoresHostCase(t *testing.T) {
	a, _ := ParseInetEndpoint("VPN.example.com:1")
	b, _ := ParseInetEndpoint("vpn.example.com:1")
	if !a.Equal(b) {
		t.Fatalf("expected endpoints to be equal")
	}
}
