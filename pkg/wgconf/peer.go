package wgconf

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/UnAfraid/wgtunnel/pkg/key"
)

const (
	minPersistentKeepalive = 0
	maxPersistentKeepalive = 65535
)

// Peer is a [Peer] section of a tunnel configuration.
type Peer struct {
	allowedIPs          []InetNetwork
	endpoint            *InetEndpoint
	persistentKeepalive *int
	presharedKey        *key.Key
	publicKey           key.Key
}

func (p *Peer) AllowedIPs() []InetNetwork {
	return slices.Clone(p.allowedIPs)
}

func (p *Peer) Endpoint() (InetEndpoint, bool) {
	if p.endpoint == nil {
		return InetEndpoint{}, false
	}
	return *p.endpoint, true
}

// PersistentKeepalive returns the keepalive interval in seconds. An unset
// interval means keepalive is disabled.
func (p *Peer) PersistentKeepalive() (int, bool) {
	if p.persistentKeepalive == nil {
		return 0, false
	}
	return *p.persistentKeepalive, true
}

func (p *Peer) PresharedKey() (key.Key, bool) {
	if p.presharedKey == nil {
		return key.Key{}, false
	}
	return *p.presharedKey, true
}

func (p *Peer) PublicKey() key.Key {
	return p.publicKey
}

func (p *Peer) Equal(other *Peer) bool {
	if p == nil || other == nil {
		return p == other
	}
	if (p.endpoint == nil) != (other.endpoint == nil) {
		return false
	}
	if p.endpoint != nil && !p.endpoint.Equal(*other.endpoint) {
		return false
	}
	if (p.presharedKey == nil) != (other.presharedKey == nil) {
		return false
	}
	if p.presharedKey != nil && !p.presharedKey.Equal(*other.presharedKey) {
		return false
	}
	return slices.Equal(p.allowedIPs, other.allowedIPs) &&
		equalPointers(p.persistentKeepalive, other.persistentKeepalive) &&
		p.publicKey.Equal(other.publicKey)
}

// WgQuickString renders the section body in wg-quick(8) format, without the
// [Peer] header.
func (p *Peer) WgQuickString() string {
	var sb strings.Builder
	if len(p.allowedIPs) > 0 {
		writeAttribute(&sb, "AllowedIPs", JoinStringers(p.allowedIPs))
	}
	if p.endpoint != nil {
		writeAttribute(&sb, "Endpoint", p.endpoint.String())
	}
	if p.persistentKeepalive != nil {
		writeAttribute(&sb, "PersistentKeepalive", strconv.Itoa(*p.persistentKeepalive))
	}
	if p.presharedKey != nil {
		writeAttribute(&sb, "PresharedKey", p.presharedKey.Base64())
	}
	writeAttribute(&sb, "PublicKey", p.publicKey.Base64())
	return sb.String()
}

// UAPI renders the peer part of the userspace API configuration. An endpoint
// that cannot be resolved is left out, so the peer is configured without one.
func (p *Peer) UAPI(ctx context.Context, resolver HostResolver) string {
	var sb strings.Builder
	writeUAPI(&sb, "public_key", p.publicKey.Hex())
	writeUAPI(&sb, "replace_allowed_ips", "true")
	if p.presharedKey != nil {
		writeUAPI(&sb, "preshared_key", p.presharedKey.Hex())
	}
	if p.endpoint != nil {
		if addrPort, err := p.endpoint.Resolve(ctx, resolver); err == nil {
			writeUAPI(&sb, "endpoint", addrPort.String())
		}
	}
	if p.persistentKeepalive != nil {
		writeUAPI(&sb, "persistent_keepalive_interval", strconv.Itoa(*p.persistentKeepalive))
	}
	for _, allowedIP := range p.allowedIPs {
		writeUAPI(&sb, "allowed_ip", allowedIP.Prefix().Masked().String())
	}
	return sb.String()
}

// PeerBuilder accumulates [Peer] attributes and validates them.
type PeerBuilder struct {
	peer         Peer
	hasPublicKey bool
}

func NewPeerBuilder() *PeerBuilder {
	return &PeerBuilder{}
}

// ParsePeer builds a Peer from the lines of a [Peer] section.
func ParsePeer(lines []string) (*Peer, error) {
	b := NewPeerBuilder()
	for _, line := range lines {
		attribute, ok := ParseAttribute(line)
		if !ok {
			return nil, newBadConfigError(SectionPeer, LocationTopLevel, ReasonSyntaxError, line, nil)
		}

		var err error
		switch strings.ToLower(attribute.Key) {
		case "allowedips":
			err = b.ParseAllowedIPs(attribute.Value)
		case "endpoint":
			err = b.ParseEndpoint(attribute.Value)
		case "persistentkeepalive":
			err = b.ParsePersistentKeepalive(attribute.Value)
		case "presharedkey":
			err = b.ParsePresharedKey(attribute.Value)
		case "publickey":
			err = b.ParsePublicKey(attribute.Value)
		default:
			err = newBadConfigError(SectionPeer, LocationTopLevel, ReasonUnknownAttribute, attribute.Key, nil)
		}
		if err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func (b *PeerBuilder) AddAllowedIP(allowedIP InetNetwork) *PeerBuilder {
	b.peer.allowedIPs = append(b.peer.allowedIPs, allowedIP)
	return b
}

func (b *PeerBuilder) ParseAllowedIPs(value string) error {
	for _, text := range SplitList(value) {
		allowedIP, err := ParseInetNetwork(text)
		if err != nil {
			return newBadConfigError(SectionPeer, LocationAllowedIPs, ReasonInvalidValue, text, err)
		}
		b.AddAllowedIP(allowedIP)
	}
	return nil
}

func (b *PeerBuilder) SetEndpoint(endpoint InetEndpoint) *PeerBuilder {
	b.peer.endpoint = &endpoint
	return b
}

func (b *PeerBuilder) ParseEndpoint(value string) error {
	endpoint, err := ParseInetEndpoint(value)
	if err != nil {
		return newBadConfigError(SectionPeer, LocationEndpoint, ReasonInvalidValue, value, err)
	}
	b.SetEndpoint(endpoint)
	return nil
}

// SetPersistentKeepalive sets the keepalive interval; 0 disables it.
func (b *PeerBuilder) SetPersistentKeepalive(seconds int) error {
	if seconds < minPersistentKeepalive || seconds > maxPersistentKeepalive {
		return newBadConfigError(SectionPeer, LocationPersistentKeepalive, ReasonInvalidNumber, strconv.Itoa(seconds), nil)
	}
	if seconds == 0 {
		b.peer.persistentKeepalive = nil
		return nil
	}
	b.peer.persistentKeepalive = &seconds
	return nil
}

func (b *PeerBuilder) ParsePersistentKeepalive(value string) error {
	if strings.EqualFold(value, "off") {
		return b.SetPersistentKeepalive(0)
	}
	seconds, err := parseInt(value)
	if err != nil {
		return newBadConfigError(SectionPeer, LocationPersistentKeepalive, ReasonInvalidNumber, value, err)
	}
	return b.SetPersistentKeepalive(seconds)
}

func (b *PeerBuilder) SetPresharedKey(presharedKey key.Key) *PeerBuilder {
	b.peer.presharedKey = &presharedKey
	return b
}

func (b *PeerBuilder) ParsePresharedKey(value string) error {
	presharedKey, err := key.FromBase64(value)
	if err != nil {
		return newBadConfigError(SectionPeer, LocationPresharedKey, ReasonInvalidKey, value, err)
	}
	b.SetPresharedKey(presharedKey)
	return nil
}

func (b *PeerBuilder) SetPublicKey(publicKey key.Key) error {
	if b.hasPublicKey {
		return newBadConfigError(SectionPeer, LocationPublicKey, ReasonDuplicate, publicKey.Base64(), nil)
	}
	b.peer.publicKey = publicKey
	b.hasPublicKey = true
	return nil
}

func (b *PeerBuilder) ParsePublicKey(value string) error {
	publicKey, err := key.FromBase64(value)
	if err != nil {
		return newBadConfigError(SectionPeer, LocationPublicKey, ReasonInvalidKey, value, err)
	}
	return b.SetPublicKey(publicKey)
}

func (b *PeerBuilder) Build() (*Peer, error) {
	if !b.hasPublicKey {
		return nil, newBadConfigError(SectionPeer, LocationPublicKey, ReasonMissingAttribute, "", nil)
	}

	peer := b.peer
	peer.allowedIPs = slices.Clone(b.peer.allowedIPs)
	return &peer, nil
}
