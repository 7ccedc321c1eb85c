package wgconf

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"
)

var (
	errForbiddenEndpointCharacters = errors.New("endpoint must not contain '/', '?' or '#'")
	errMissingEndpointHost         = errors.New("endpoint host is missing")
	errMissingEndpointPort         = errors.New("endpoint port is missing")
	errInvalidEndpointHost         = errors.New("endpoint host is not a valid address or hostname")
	errNoAddresses                 = errors.New("hostname resolved to no addresses")
)

// InetEndpoint is a peer endpoint. Numeric hosts are resolved when parsed;
// hostnames are kept as they are until Resolve is called.
type InetEndpoint struct {
	host     string
	port     uint16
	resolved netip.Addr
}

func ParseInetEndpoint(text string) (InetEndpoint, error) {
	if strings.ContainsAny(text, "/?#") {
		return InetEndpoint{}, &ParseError{Target: TargetEndpoint, Text: text, Err: errForbiddenEndpointCharacters}
	}

	// IPv6 hosts must be bracketed; SplitHostPort rejects the ambiguous
	// unbracketed form.
	host, portText, err := net.SplitHostPort(text)
	if err != nil {
		return InetEndpoint{}, &ParseError{Target: TargetEndpoint, Text: text, Err: err}
	}
	if host == "" {
		return InetEndpoint{}, &ParseError{Target: TargetEndpoint, Text: text, Err: errMissingEndpointHost}
	}
	if portText == "" {
		return InetEndpoint{}, &ParseError{Target: TargetEndpoint, Text: text, Err: errMissingEndpointPort}
	}
	bracketed := strings.HasPrefix(text, "[")
	if bracketed != strings.Contains(host, ":") {
		return InetEndpoint{}, &ParseError{Target: TargetEndpoint, Text: text, Err: errInvalidEndpointHost}
	}
	port, err := strconv.ParseUint(portText, 10, 16)
	if err != nil {
		return InetEndpoint{}, &ParseError{Target: TargetEndpoint, Text: text, Err: err}
	}

	endpoint := InetEndpoint{
		host: host,
		port: uint16(port),
	}

	if addr, err := ParseAddress(host); err == nil {
		endpoint.resolved = addr
	} else if !govalidator.IsDNSName(host) {
		return InetEndpoint{}, &ParseError{Target: TargetEndpoint, Text: text, Err: errInvalidEndpointHost}
	}

	return endpoint, nil
}

func NewInetEndpoint(addrPort netip.AddrPort) InetEndpoint {
	return InetEndpoint{
		host:     addrPort.Addr().String(),
		port:     addrPort.Port(),
		resolved: addrPort.Addr(),
	}
}

func (e InetEndpoint) Host() string {
	return e.host
}

func (e InetEndpoint) Port() uint16 {
	return e.port
}

// IsResolved reports whether the host is a numeric address.
func (e InetEndpoint) IsResolved() bool {
	return e.resolved.IsValid()
}

// Resolve returns the endpoint address, looking the hostname up with resolver
// when it is not numeric. IPv4 results are preferred.
func (e InetEndpoint) Resolve(ctx context.Context, resolver HostResolver) (netip.AddrPort, error) {
	if e.resolved.IsValid() {
		return netip.AddrPortFrom(e.resolved, e.port), nil
	}
	if resolver == nil {
		return netip.AddrPort{}, fmt.Errorf("no resolver for endpoint host %s", e.host)
	}

	addrs, err := resolver.LookupHost(ctx, e.host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("failed to resolve endpoint host %s: %w", e.host, err)
	}
	if len(addrs) == 0 {
		return netip.AddrPort{}, fmt.Errorf("failed to resolve endpoint host %s: %w", e.host, errNoAddresses)
	}

	chosen := addrs[0]
	for _, addr := range addrs {
		if addr.Is4() {
			chosen = addr
			break
		}
	}
	return netip.AddrPortFrom(chosen, e.port), nil
}

func (e InetEndpoint) Equal(other InetEndpoint) bool {
	return strings.EqualFold(e.host, other.host) && e.port == other.port
}

func (e InetEndpoint) String() string {
	if strings.Contains(e.host, ":") {
		return fmt.Sprintf("[%s]:%d", e.host, e.port)
	}
	return fmt.Sprintf("%s:%d", e.host, e.port)
}
