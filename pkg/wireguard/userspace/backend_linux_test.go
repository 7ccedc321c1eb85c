//go:build linux

package userspace

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

func mustParseIPNet(t *testing.T, cidr string) net.IPNet {
	t.Helper()
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("ParseCIDR(%q) failed: %v", cidr, err)
	}
	return *ipNet
}

func TestComputeRoutes(t *testing.T) {
	kept := mustParseIPNet(t, "10.0.0.0/24")
	stale := mustParseIPNet(t, "10.1.0.0/16")
	kernel := mustParseIPNet(t, "10.0.0.0/8")
	added := mustParseIPNet(t, "fd00::/64")

	existing := []netlink.Route{
		{LinkIndex: 7, Dst: &kept, Protocol: routeProtocolStatic},
		{LinkIndex: 7, Dst: &stale, Protocol: routeProtocolStatic},
		{LinkIndex: 7, Dst: &kernel, Protocol: netlink.RouteProtocol(2)},
	}

	toAdd, toRemove := computeRoutes(7, existing, []net.IPNet{kept, added})

	if len(toAdd) != 1 || toAdd[0].Dst.String() != "fd00::/64" {
		t.Fatalf("expected to add fd00::/64, got %v", toAdd)
	}
	if toAdd[0].LinkIndex != 7 || toAdd[0].Scope != netlink.SCOPE_LINK || toAdd[0].Table != unix.RT_TABLE_MAIN {
		t.Fatalf("expected link scoped main table route on link 7, got %+v", toAdd[0])
	}
	if len(toRemove) != 1 || toRemove[0].Dst.String() != "10.1.0.0/16" {
		t.Fatalf("expected to remove 10.1.0.0/16 only, got %v", toRemove)
	}
}

func TestComputeRoutesKeepsDefaultRoutesOutOfMainTable(t *testing.T) {
	defaultV4 := mustParseIPNet(t, "0.0.0.0/0")
	defaultV6 := mustParseIPNet(t, "::/0")
	subnet := mustParseIPNet(t, "10.0.0.0/24")

	existing := []netlink.Route{
		{LinkIndex: 7, Dst: &defaultV6, Protocol: routeProtocolStatic, Table: defaultRouteTable},
		{LinkIndex: 7, Dst: &defaultV4, Protocol: routeProtocolStatic, Table: unix.RT_TABLE_MAIN},
	}

	toAdd, toRemove := computeRoutes(7, existing, []net.IPNet{defaultV4, defaultV6, subnet})

	type route struct {
		Dst   string
		Table int
	}
	var added []route
	for _, r := range toAdd {
		added = append(added, route{Dst: r.Dst.String(), Table: r.Table})
	}
	wantAdded := []route{
		{Dst: "0.0.0.0/0", Table: defaultRouteTable},
		{Dst: "10.0.0.0/24", Table: unix.RT_TABLE_MAIN},
	}
	if diff := cmp.Diff(wantAdded, added); diff != "" {
		t.Fatalf("unexpected routes to add (-want +got):\n%s", diff)
	}

	if len(toRemove) != 1 || toRemove[0].Table != unix.RT_TABLE_MAIN || toRemove[0].Dst.String() != "0.0.0.0/0" {
		t.Fatalf("expected to remove the main table default route, got %v", toRemove)
	}
}

func TestDefaultRouteFamilies(t *testing.T) {
	tests := []struct {
		name       string
		allowedIPs []string
		want       []int
	}{
		{name: "none", allowedIPs: []string{"10.0.0.0/24", "fd00::/64"}},
		{name: "ipv4", allowedIPs: []string{"0.0.0.0/0", "fd00::/64"}, want: []int{netlink.FAMILY_V4}},
		{name: "both", allowedIPs: []string{"::/0", "0.0.0.0/0", "0.0.0.0/0"}, want: []int{netlink.FAMILY_V4, netlink.FAMILY_V6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var allowedIPs []net.IPNet
			for _, cidr := range tt.allowedIPs {
				allowedIPs = append(allowedIPs, mustParseIPNet(t, cidr))
			}
			if diff := cmp.Diff(tt.want, defaultRouteFamilies(allowedIPs)); diff != "" {
				t.Fatalf("unexpected families (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPolicyRules(t *testing.T) {
	rules := policyRules(netlink.FAMILY_V4)
	if len(rules) != 2 {
		t.Fatalf("expected two rules, got %d", len(rules))
	}
	if !rules[0].Invert || rules[0].Table != defaultRouteTable || rules[0].Mark != defaultRouteMark {
		t.Fatalf("expected unmarked traffic to use table %d, got %+v", defaultRouteTable, rules[0])
	}
	if rules[1].Table != unix.RT_TABLE_MAIN || rules[1].SuppressPrefixlen != 0 {
		t.Fatalf("expected main table lookup without default route, got %+v", rules[1])
	}
	for _, rule := range rules {
		if rule.Family != netlink.FAMILY_V4 {
			t.Fatalf("expected ipv4 rule, got family %d", rule.Family)
		}
	}
}
