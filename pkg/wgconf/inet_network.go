package wgconf

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// InetNetwork is an address together with a prefix length. Host bits are
// kept, so "10.0.0.2/24" stays "10.0.0.2/24".
type InetNetwork struct {
	prefix netip.Prefix
}

func ParseInetNetwork(text string) (InetNetwork, error) {
	addrText, bitsText, hasBits := strings.Cut(strings.TrimSpace(text), "/")

	addr, err := ParseAddress(addrText)
	if err != nil {
		return InetNetwork{}, &ParseError{Target: TargetNetwork, Text: text, Err: err}
	}

	bits := addr.BitLen()
	if hasBits {
		bits, err = strconv.Atoi(bitsText)
		if err != nil {
			return InetNetwork{}, &ParseError{Target: TargetNetwork, Text: text, Err: err}
		}
		if bits < 0 || bits > addr.BitLen() {
			return InetNetwork{}, &ParseError{
				Target: TargetNetwork,
				Text:   text,
				Err:    fmt.Errorf("prefix length %d out of range 0-%d", bits, addr.BitLen()),
			}
		}
	}

	return InetNetwork{prefix: netip.PrefixFrom(addr.WithZone(""), bits)}, nil
}

func MustParseInetNetwork(text string) InetNetwork {
	n, err := ParseInetNetwork(text)
	if err != nil {
		panic(err)
	}
	return n
}

func NewInetNetwork(prefix netip.Prefix) InetNetwork {
	return InetNetwork{prefix: prefix}
}

func (n InetNetwork) Address() netip.Addr {
	return n.prefix.Addr()
}

func (n InetNetwork) Bits() int {
	return n.prefix.Bits()
}

func (n InetNetwork) Prefix() netip.Prefix {
	return n.prefix
}

// IPNet returns the masked network, as used for routes and allowed IPs.
func (n InetNetwork) IPNet() net.IPNet {
	masked := n.prefix.Masked()
	return net.IPNet{
		IP:   masked.Addr().AsSlice(),
		Mask: net.CIDRMask(masked.Bits(), masked.Addr().BitLen()),
	}
}

func (n InetNetwork) String() string {
	return n.prefix.String()
}
