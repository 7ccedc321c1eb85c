package wgconf

import (
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/UnAfraid/wgtunnel/pkg/key"
)

const (
	minUDPPort = 0
	maxUDPPort = 65535
)

// Interface is the [Interface] section of a tunnel configuration.
type Interface struct {
	addresses            []InetNetwork
	dnsServers           []netip.Addr
	dnsSearchDomains     []string
	excludedApplications []string
	includedApplications []string
	keypair              *key.Keypair
	listenPort           *uint16
	mtu                  *int
}

func (i *Interface) Addresses() []InetNetwork {
	return slices.Clone(i.addresses)
}

func (i *Interface) DNSServers() []netip.Addr {
	return slices.Clone(i.dnsServers)
}

func (i *Interface) DNSSearchDomains() []string {
	return slices.Clone(i.dnsSearchDomains)
}

func (i *Interface) ExcludedApplications() []string {
	return slices.Clone(i.excludedApplications)
}

func (i *Interface) IncludedApplications() []string {
	return slices.Clone(i.includedApplications)
}

func (i *Interface) Keypair() *key.Keypair {
	return i.keypair
}

func (i *Interface) ListenPort() (uint16, bool) {
	if i.listenPort == nil {
		return 0, false
	}
	return *i.listenPort, true
}

func (i *Interface) MTU() (int, bool) {
	if i.mtu == nil {
		return 0, false
	}
	return *i.mtu, true
}

func (i *Interface) Equal(other *Interface) bool {
	if i == nil || other == nil {
		return i == other
	}
	return slices.Equal(i.addresses, other.addresses) &&
		slices.Equal(i.dnsServers, other.dnsServers) &&
		slices.Equal(i.dnsSearchDomains, other.dnsSearchDomains) &&
		slices.Equal(i.excludedApplications, other.excludedApplications) &&
		slices.Equal(i.includedApplications, other.includedApplications) &&
		i.keypair.Equal(other.keypair) &&
		equalPointers(i.listenPort, other.listenPort) &&
		equalPointers(i.mtu, other.mtu)
}

// WgQuickString renders the section body in wg-quick(8) format, without the
// [Interface] header.
func (i *Interface) WgQuickString() string {
	var sb strings.Builder
	if len(i.addresses) > 0 {
		writeAttribute(&sb, "Address", JoinStringers(i.addresses))
	}
	if len(i.dnsServers) > 0 || len(i.dnsSearchDomains) > 0 {
		dns := make([]string, 0, len(i.dnsServers)+len(i.dnsSearchDomains))
		for _, server := range i.dnsServers {
			dns = append(dns, server.String())
		}
		dns = append(dns, i.dnsSearchDomains...)
		writeAttribute(&sb, "DNS", JoinList(dns))
	}
	if len(i.excludedApplications) > 0 {
		writeAttribute(&sb, "ExcludedApplications", JoinList(i.excludedApplications))
	}
	if len(i.includedApplications) > 0 {
		writeAttribute(&sb, "IncludedApplications", JoinList(i.includedApplications))
	}
	if i.listenPort != nil {
		writeAttribute(&sb, "ListenPort", strconv.Itoa(int(*i.listenPort)))
	}
	if i.mtu != nil {
		writeAttribute(&sb, "MTU", strconv.Itoa(*i.mtu))
	}
	writeAttribute(&sb, "PrivateKey", i.keypair.PrivateKey().Base64())
	return sb.String()
}

// UAPI renders the device part of the userspace API configuration.
func (i *Interface) UAPI() string {
	var sb strings.Builder
	writeUAPI(&sb, "private_key", i.keypair.PrivateKey().Hex())
	if i.listenPort != nil {
		writeUAPI(&sb, "listen_port", strconv.Itoa(int(*i.listenPort)))
	}
	return sb.String()
}

// InterfaceBuilder accumulates [Interface] attributes and validates them.
type InterfaceBuilder struct {
	iface Interface
}

func NewInterfaceBuilder() *InterfaceBuilder {
	return &InterfaceBuilder{}
}

// ParseInterface builds an Interface from the lines of an [Interface] section.
func ParseInterface(lines []string) (*Interface, error) {
	b := NewInterfaceBuilder()
	for _, line := range lines {
		attribute, ok := ParseAttribute(line)
		if !ok {
			return nil, newBadConfigError(SectionInterface, LocationTopLevel, ReasonSyntaxError, line, nil)
		}

		var err error
		switch strings.ToLower(attribute.Key) {
		case "address":
			err = b.ParseAddresses(attribute.Value)
		case "dns":
			err = b.ParseDNSServers(attribute.Value)
		case "excludedapplications":
			err = b.ParseExcludedApplications(attribute.Value)
		case "includedapplications":
			err = b.ParseIncludedApplications(attribute.Value)
		case "listenport":
			err = b.ParseListenPort(attribute.Value)
		case "mtu":
			err = b.ParseMTU(attribute.Value)
		case "privatekey":
			err = b.ParsePrivateKey(attribute.Value)
		default:
			err = newBadConfigError(SectionInterface, LocationTopLevel, ReasonUnknownAttribute, attribute.Key, nil)
		}
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func (b *InterfaceBuilder) AddAddress(address InetNetwork) *InterfaceBuilder {
	b.iface.addresses = append(b.iface.addresses, address)
	return b
}

func (b *InterfaceBuilder) ParseAddresses(value string) error {
	for _, text := range SplitList(value) {
		address, err := ParseInetNetwork(text)
		if err != nil {
			return newBadConfigError(SectionInterface, LocationAddress, ReasonInvalidValue, text, err)
		}
		b.AddAddress(address)
	}
	return nil
}

func (b *InterfaceBuilder) AddDNSServer(server netip.Addr) *InterfaceBuilder {
	b.iface.dnsServers = append(b.iface.dnsServers, server)
	return b
}

func (b *InterfaceBuilder) AddDNSSearchDomain(domain string) *InterfaceBuilder {
	b.iface.dnsSearchDomains = append(b.iface.dnsSearchDomains, domain)
	return b
}

// ParseDNSServers accepts numeric servers and DNS search domains.
func (b *InterfaceBuilder) ParseDNSServers(value string) error {
	for _, text := range SplitList(value) {
		if server, err := ParseAddress(text); err == nil {
			b.AddDNSServer(server)
			continue
		}
		if !govalidator.IsDNSName(text) {
			return newBadConfigError(SectionInterface, LocationDNS, ReasonInvalidValue, text,
				&ParseError{Target: TargetAddress, Text: text})
		}
		b.AddDNSSearchDomain(text)
	}
	return nil
}

func (b *InterfaceBuilder) ExcludeApplications(applications ...string) *InterfaceBuilder {
	b.iface.excludedApplications = appendUnique(b.iface.excludedApplications, applications...)
	return b
}

func (b *InterfaceBuilder) ParseExcludedApplications(value string) error {
	b.ExcludeApplications(SplitList(value)...)
	return nil
}

func (b *InterfaceBuilder) IncludeApplications(applications ...string) *InterfaceBuilder {
	b.iface.includedApplications = appendUnique(b.iface.includedApplications, applications...)
	return b
}

func (b *InterfaceBuilder) ParseIncludedApplications(value string) error {
	b.IncludeApplications(SplitList(value)...)
	return nil
}

func (b *InterfaceBuilder) SetListenPort(listenPort int) error {
	if listenPort < minUDPPort || listenPort > maxUDPPort {
		return newBadConfigError(SectionInterface, LocationListenPort, ReasonInvalidNumber, strconv.Itoa(listenPort), nil)
	}
	port := uint16(listenPort)
	b.iface.listenPort = &port
	return nil
}

func (b *InterfaceBuilder) ParseListenPort(value string) error {
	listenPort, err := parseInt(value)
	if err != nil {
		return newBadConfigError(SectionInterface, LocationListenPort, ReasonInvalidNumber, value, err)
	}
	return b.SetListenPort(listenPort)
}

func (b *InterfaceBuilder) SetMTU(mtu int) error {
	if mtu <= 0 {
		return newBadConfigError(SectionInterface, LocationMTU, ReasonInvalidNumber, strconv.Itoa(mtu), nil)
	}
	b.iface.mtu = &mtu
	return nil
}

func (b *InterfaceBuilder) ParseMTU(value string) error {
	mtu, err := parseInt(value)
	if err != nil {
		return newBadConfigError(SectionInterface, LocationMTU, ReasonInvalidNumber, value, err)
	}
	return b.SetMTU(mtu)
}

func (b *InterfaceBuilder) SetKeypair(keypair *key.Keypair) error {
	if b.iface.keypair != nil {
		return newBadConfigError(SectionInterface, LocationPrivateKey, ReasonDuplicate, "", nil)
	}
	b.iface.keypair = keypair
	return nil
}

func (b *InterfaceBuilder) ParsePrivateKey(value string) error {
	privateKey, err := key.FromBase64(value)
	if err != nil {
		return newBadConfigError(SectionInterface, LocationPrivateKey, ReasonInvalidKey, value, err)
	}
	return b.SetKeypair(key.NewKeypair(privateKey))
}

func (b *InterfaceBuilder) Build() (*Interface, error) {
	if b.iface.keypair == nil {
		return nil, newBadConfigError(SectionInterface, LocationPrivateKey, ReasonMissingAttribute, "", nil)
	}
	if len(b.iface.includedApplications) > 0 && len(b.iface.excludedApplications) > 0 {
		return nil, newBadConfigError(SectionInterface, LocationIncludedApplications, ReasonInvalidValue,
			"included and excluded applications are mutually exclusive", nil)
	}

	iface := b.iface
	iface.addresses = slices.Clone(b.iface.addresses)
	iface.dnsServers = slices.Clone(b.iface.dnsServers)
	iface.dnsSearchDomains = slices.Clone(b.iface.dnsSearchDomains)
	iface.excludedApplications = slices.Clone(b.iface.excludedApplications)
	iface.includedApplications = slices.Clone(b.iface.includedApplications)
	return &iface, nil
}
