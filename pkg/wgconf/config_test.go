package wgconf

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	testPrivateKey   = "yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk="
	testPublicKey    = "HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw="
	testPresharedKey = "BwcHBwcHBwcHBwcHBwcHBwcHBwcHBwcHBwcHBwcHBwc="
	testOtherKey     = "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
)

const exampleConfig = `[Interface]
PrivateKey = ` + testPrivateKey + `
Address = 10.0.0.2/24

[Peer]
PublicKey = ` + testPublicKey + `
AllowedIPs = 0.0.0.0/0
Endpoint = vpn.example.com:51820
`

type staticResolver map[string][]netip.Addr

func (r staticResolver) LookupHost(_ context.Context, host string) ([]netip.Addr, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func mustParse(t *testing.T, text string) *Config {
	t.Helper()
	config, err := ParseString(text)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	return config
}

func expectBadConfig(t *testing.T, err error, section Section, location Location, reason Reason) *BadConfigError {
	t.Helper()
	var badConfigErr *BadConfigError
	if !errors.As(err, &badConfigErr) {
		t.Fatalf("expected *BadConfigError, got %v", err)
	}
	if badConfigErr.Section != section {
		t.Fatalf("expected section %s, got %s", section, badConfigErr.Section)
	}
	if badConfigErr.Location != location {
		t.Fatalf("expected location %s, got %s", location, badConfigErr.Location)
	}
	if badConfigErr.Reason != reason {
		t.Fatalf("expected reason %s, got %s", reason, badConfigErr.Reason)
	}
	return badConfigErr
}

func TestParseExample(t *testing.T) {
	config := mustParse(t, exampleConfig)

	addresses := config.Interface().Addresses()
	if len(addresses) != 1 || addresses[0].String() != "10.0.0.2/24" {
		t.Fatalf("expected address 10.0.0.2/24, got %v", addresses)
	}
	if got := config.Interface().Keypair().PublicKey().Base64(); got != testPublicKey {
		t.Fatalf("expected derived public key %s, got %s", testPublicKey, got)
	}

	peers := config.Peers()
	if len(peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(peers))
	}
	peer := peers[0]
	if got := peer.AllowedIPs(); len(got) != 1 || got[0].String() != "0.0.0.0/0" {
		t.Fatalf("expected allowed ip 0.0.0.0/0, got %v", got)
	}
	endpoint, ok := peer.Endpoint()
	if !ok {
		t.Fatalf("expected endpoint to be set")
	}
	if endpoint.IsResolved() {
		t.Fatalf("expected hostname endpoint to stay unresolved")
	}
	if endpoint.Host() != "vpn.example.com" || endpoint.Port() != 51820 {
		t.Fatalf("expected vpn.example.com:51820, got %s", endpoint)
	}
}

func TestWgQuickStringRoundTrip(t *testing.T) {
	texts := []string{
		exampleConfig,
		`[Interface]
PrivateKey = ` + testPrivateKey + `
Address = 10.0.0.2/24, fd00::2/64
DNS = 1.1.1.1, 2606:4700:4700::1111, corp.example.com
ListenPort = 51820
MTU = 1420
IncludedApplications = com.example.app

[Peer]
PublicKey = ` + testPublicKey + `
PresharedKey = ` + testPresharedKey + `
AllowedIPs = 10.0.0.0/24, ::/0
Endpoint = [2001:db8::1]:51820
PersistentKeepalive = 25

[Peer]
PublicKey = ` + testOtherKey + `
Endpoint = 192.0.2.1:1234
`,
	}

	for _, text := range texts {
		config := mustParse(t, text)
		serialized := config.WgQuickString()
		reparsed := mustParse(t, serialized)
		if diff := cmp.Diff(config, reparsed); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
		if again := reparsed.WgQuickString(); again != serialized {
			t.Fatalf("expected stable serialization, got:\n%s\nwant:\n%s", again, serialized)
		}
	}
}

func TestWgQuickStringOrder(t *testing.T) {
	config := mustParse(t, `[interface]
privatekey = `+testPrivateKey+`
mtu = 1280
listenport = 51000
dns = 9.9.9.9
address = 10.1.0.1/32

[PEER]
publickey = `+testPublicKey+`
persistentkeepalive = 15
endpoint = 192.0.2.7:51820
allowedips = 10.1.0.0/16
`)

	want := `[Interface]
Address = 10.1.0.1/32
DNS = 9.9.9.9
ListenPort = 51000
MTU = 1280
PrivateKey = ` + testPrivateKey + `

[Peer]
AllowedIPs = 10.1.0.0/16
Endpoint = 192.0.2.7:51820
PersistentKeepalive = 15
PublicKey = ` + testPublicKey + `
`
	if diff := cmp.Diff(want, config.WgQuickString()); diff != "" {
		t.Fatalf("unexpected serialization (-want +got):\n%s", diff)
	}
}

func TestParseInvalidMTU(t *testing.T) {
	for _, mtu := range []string{"-5", "abc", "0"} {
		_, err := ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\nMTU = " + mtu + "\n")
		expectBadConfig(t, err, SectionInterface, LocationMTU, ReasonInvalidNumber)
	}
}

func TestParseInvalidMTUCarriesIntegerParseError(t *testing.T) {
	_, err := ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\nMTU = abc\n")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError cause, got %v", err)
	}
	if parseErr.Target != TargetInteger {
		t.Fatalf("expected target integer, got %s", parseErr.Target)
	}
}

func TestParseInvalidListenPort(t *testing.T) {
	_, err := ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\nListenPort = 70000\n")
	expectBadConfig(t, err, SectionInterface, LocationListenPort, ReasonInvalidNumber)
}

func TestParseDuplicatePeerPublicKey(t *testing.T) {
	text := "[Interface]\nPrivateKey = " + testPrivateKey + "\n" +
		"[Peer]\nPublicKey = " + testPublicKey + "\n" +
		"[Peer]\nPublicKey = " + testPublicKey + "\n"
	_, err := ParseString(text)
	expectBadConfig(t, err, SectionPeer, LocationPublicKey, ReasonDuplicate)
}

func TestParseDuplicatePrivateKey(t *testing.T) {
	text := "[Interface]\nPrivateKey = " + testPrivateKey + "\nPrivateKey = " + testOtherKey + "\n"
	_, err := ParseString(text)
	expectBadConfig(t, err, SectionInterface, LocationPrivateKey, ReasonDuplicate)
}

func TestParseMissingSections(t *testing.T) {
	_, err := ParseString("[Peer]\nPublicKey = " + testPublicKey + "\n")
	expectBadConfig(t, err, SectionConfig, LocationTopLevel, ReasonMissingSection)

	_, err = ParseString("# only a comment\n\n")
	expectBadConfig(t, err, SectionConfig, LocationTopLevel, ReasonMissingSection)
}

func TestParseUnknownSection(t *testing.T) {
	_, err := ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\n[Server]\n")
	expectBadConfig(t, err, SectionConfig, LocationTopLevel, ReasonUnknownSection)

	_, err = ParseString("PrivateKey = " + testPrivateKey + "\n[Interface]\n")
	expectBadConfig(t, err, SectionConfig, LocationTopLevel, ReasonUnknownSection)
}

func TestParseUnknownAttribute(t *testing.T) {
	_, err := ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\nTable = off\n")
	badConfigErr := expectBadConfig(t, err, SectionInterface, LocationTopLevel, ReasonUnknownAttribute)
	if badConfigErr.Text != "Table" {
		t.Fatalf("expected offending text Table, got %q", badConfigErr.Text)
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\nMTU =\n")
	expectBadConfig(t, err, SectionInterface, LocationTopLevel, ReasonSyntaxError)
}

func TestParseMissingAttributes(t *testing.T) {
	_, err := ParseString("[Interface]\nAddress = 10.0.0.1/24\n")
	expectBadConfig(t, err, SectionInterface, LocationPrivateKey, ReasonMissingAttribute)

	_, err = ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\n[Peer]\nAllowedIPs = 0.0.0.0/0\n")
	expectBadConfig(t, err, SectionPeer, LocationPublicKey, ReasonMissingAttribute)
}

func TestParseInvalidKey(t *testing.T) {
	_, err := ParseString("[Interface]\nPrivateKey = not-a-key\n")
	expectBadConfig(t, err, SectionInterface, LocationPrivateKey, ReasonInvalidKey)

	_, err = ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\n[Peer]\nPublicKey = AAAA\n")
	expectBadConfig(t, err, SectionPeer, LocationPublicKey, ReasonInvalidKey)
}

func TestParseInvalidValues(t *testing.T) {
	_, err := ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\nAddress = 10.0.0.300/24\n")
	expectBadConfig(t, err, SectionInterface, LocationAddress, ReasonInvalidValue)

	_, err = ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\n[Peer]\nPublicKey = " + testPublicKey + "\nEndpoint = vpn.example.com\n")
	expectBadConfig(t, err, SectionPeer, LocationEndpoint, ReasonInvalidValue)

	_, err = ParseString("[Interface]\nPrivateKey = " + testPrivateKey + "\nDNS = not a domain!\n")
	expectBadConfig(t, err, SectionInterface, LocationDNS, ReasonInvalidValue)
}

func TestParseApplicationsMutuallyExclusive(t *testing.T) {
	text := "[Interface]\nPrivateKey = " + testPrivateKey + "\nIncludedApplications = a.b\nExcludedApplications = c.d\n"
	_, err := ParseString(text)
	expectBadConfig(t, err, SectionInterface, LocationIncludedApplications, ReasonInvalidValue)
}

func TestParseDNSSearchDomains(t *testing.T) {
	config := mustParse(t, "[Interface]\nPrivateKey = "+testPrivateKey+"\nDNS = 10.0.0.1, example.com, lan\n")
	iface := config.Interface()
	if diff := cmp.Diff([]netip.Addr{netip.MustParseAddr("10.0.0.1")}, iface.DNSServers(), cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
		t.Fatalf("unexpected dns servers (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"example.com", "lan"}, iface.DNSSearchDomains()); diff != "" {
		t.Fatalf("unexpected search domains (-want +got):\n%s", diff)
	}
}

func TestParseIgnoresCommentsAndKeepaliveOff(t *testing.T) {
	config := mustParse(t, `# leading comment
[Interface] # header comment
PrivateKey = `+testPrivateKey+` # trailing comment

[Peer]
PublicKey = `+testPublicKey+`
PersistentKeepalive = 0
`)
	if _, ok := config.Peers()[0].PersistentKeepalive(); ok {
		t.Fatalf("expected persistent keepalive 0 to disable keepalive")
	}
}

func TestUAPI(t *testing.T) {
	config := mustParse(t, `[Interface]
PrivateKey = `+testPrivateKey+`
ListenPort = 51820

[Peer]
PublicKey = `+testPublicKey+`
PresharedKey = `+testPresharedKey+`
AllowedIPs = 10.0.0.2/24
Endpoint = vpn.example.com:51820
PersistentKeepalive = 25

[Peer]
PublicKey = `+testOtherKey+`
Endpoint = unknown.example.com:1
`)

	resolver := staticResolver{
		"vpn.example.com": {netip.MustParseAddr("2001:db8::1"), netip.MustParseAddr("192.0.2.10")},
	}

	want := strings.Join([]string{
		"private_key=c809f3e5317e9575c9b5ed78b638b7ce530dabe85ddab614220241801ddf0669",
		"listen_port=51820",
		"replace_peers=true",
		"public_key=1c8828f7137324c58b2804928624ea2326f1674537c062e251e2753ca7fcca4c",
		"replace_allowed_ips=true",
		"preshared_key=0707070707070707070707070707070707070707070707070707070707070707",
		"endpoint=192.0.2.10:51820",
		"persistent_keepalive_interval=25",
		"allowed_ip=10.0.0.0/24",
		"public_key=000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		"replace_allowed_ips=true",
		"",
	}, "\n")

	if diff := cmp.Diff(want, config.UAPI(context.Background(), resolver)); diff != "" {
		t.Fatalf("unexpected uapi (-want +got):\n%s", diff)
	}
}

func TestConfigBuilderRejectsMissingInterface(t *testing.T) {
	_, err := NewConfigBuilder().Build()
	expectBadConfig(t, err, SectionConfig, LocationTopLevel, ReasonMissingSection)
}

func TestGenerate(t *testing.T) {
	config, err := Generate(MustParseInetNetwork("10.9.0.1/24"))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	reparsed := mustParse(t, config.WgQuickString())
	if !config.Equal(reparsed) {
		t.Fatalf("expected generated config to round trip, got:\n%s", reparsed)
	}
}

func TestUnmarshalText(t *testing.T) {
	var config Config
	if err := config.UnmarshalText([]byte(exampleConfig)); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	text, err := config.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}
	if !strings.Contains(string(text), "Endpoint = vpn.example.com:51820") {
		t.Fatalf("expected endpoint in marshaled text, got:\n%s", text)
	}
}
