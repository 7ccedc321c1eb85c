package wgconf

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/UnAfraid/wgtunnel/pkg/key"
)

// Config is a complete tunnel configuration: one interface and its peers in
// the order they were added.
type Config struct {
	iface *Interface
	peers []*Peer
}

func (c *Config) Interface() *Interface {
	return c.iface
}

func (c *Config) Peers() []*Peer {
	return slices.Clone(c.peers)
}

func (c *Config) Equal(other *Config) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.iface.Equal(other.iface) &&
		slices.EqualFunc(c.peers, other.peers, func(a, b *Peer) bool { return a.Equal(b) })
}

// WgQuickString renders the configuration in wg-quick(8) format.
func (c *Config) WgQuickString() string {
	var sb strings.Builder
	sb.WriteString("[Interface]\n")
	sb.WriteString(c.iface.WgQuickString())
	for _, peer := range c.peers {
		sb.WriteString("\n[Peer]\n")
		sb.WriteString(peer.WgQuickString())
	}
	return sb.String()
}

func (c *Config) String() string {
	return c.WgQuickString()
}

func (c *Config) MarshalText() ([]byte, error) {
	return []byte(c.WgQuickString()), nil
}

func (c *Config) UnmarshalText(text []byte) error {
	parsed, err := ParseString(string(text))
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}

// UAPI renders the configuration for the WireGuard userspace API "set"
// operation. Hostname endpoints are resolved with resolver.
func (c *Config) UAPI(ctx context.Context, resolver HostResolver) string {
	var sb strings.Builder
	sb.WriteString(c.iface.UAPI())
	writeUAPI(&sb, "replace_peers", "true")
	for _, peer := range c.peers {
		sb.WriteString(peer.UAPI(ctx, resolver))
	}
	return sb.String()
}

// ConfigBuilder assembles a Config, rejecting peers that share a public key.
type ConfigBuilder struct {
	iface *Interface
	peers []*Peer
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) SetInterface(iface *Interface) *ConfigBuilder {
	b.iface = iface
	return b
}

func (b *ConfigBuilder) AddPeer(peer *Peer) error {
	publicKey := peer.PublicKey()
	if slices.ContainsFunc(b.peers, func(p *Peer) bool { return p.PublicKey().Equal(publicKey) }) {
		return newBadConfigError(SectionPeer, LocationPublicKey, ReasonDuplicate, publicKey.Base64(), nil)
	}
	b.peers = append(b.peers, peer)
	return nil
}

func (b *ConfigBuilder) AddPeers(peers ...*Peer) error {
	for _, peer := range peers {
		if err := b.AddPeer(peer); err != nil {
			return err
		}
	}
	return nil
}

func (b *ConfigBuilder) Build() (*Config, error) {
	if b.iface == nil {
		return nil, newBadConfigError(SectionConfig, LocationTopLevel, ReasonMissingSection, "Interface", nil)
	}
	return &Config{
		iface: b.iface,
		peers: slices.Clone(b.peers),
	}, nil
}

type sectionKind int

const (
	sectionNone sectionKind = iota
	sectionInterface
	sectionPeer
)

// Parse reads a wg-quick(8) style configuration. Section headers and
// attribute names are matched case-insensitively.
func Parse(r io.Reader) (*Config, error) {
	var (
		current        = sectionNone
		hasInterface   bool
		interfaceLines []string
		peerLines      [][]string
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") {
			switch strings.ToLower(line) {
			case "[interface]":
				current = sectionInterface
				hasInterface = true
			case "[peer]":
				current = sectionPeer
				peerLines = append(peerLines, nil)
			default:
				return nil, newBadConfigError(SectionConfig, LocationTopLevel, ReasonUnknownSection, line, nil)
			}
			continue
		}

		switch current {
		case sectionInterface:
			interfaceLines = append(interfaceLines, line)
		case sectionPeer:
			peerLines[len(peerLines)-1] = append(peerLines[len(peerLines)-1], line)
		default:
			return nil, newBadConfigError(SectionConfig, LocationTopLevel, ReasonUnknownSection, line, nil)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if !hasInterface {
		return nil, newBadConfigError(SectionConfig, LocationTopLevel, ReasonMissingSection, "Interface", nil)
	}

	iface, err := ParseInterface(interfaceLines)
	if err != nil {
		return nil, err
	}

	b := NewConfigBuilder().SetInterface(iface)
	for _, lines := range peerLines {
		peer, err := ParsePeer(lines)
		if err != nil {
			return nil, err
		}
		if err := b.AddPeer(peer); err != nil {
			return nil, err
		}
	}
	return b.Build()
}

func ParseString(text string) (*Config, error) {
	return Parse(strings.NewReader(text))
}

// Generate returns a configuration with a fresh private key and no peers.
func Generate(addresses ...InetNetwork) (*Config, error) {
	keypair, err := key.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}

	ib := NewInterfaceBuilder()
	for _, address := range addresses {
		ib.AddAddress(address)
	}
	if err := ib.SetKeypair(keypair); err != nil {
		return nil, err
	}
	iface, err := ib.Build()
	if err != nil {
		return nil, err
	}
	return NewConfigBuilder().SetInterface(iface).Build()
}
