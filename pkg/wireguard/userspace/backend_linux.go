//go:build linux

package userspace

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"

	"github.com/UnAfraid/wgtunnel/pkg/wgconf"
	"github.com/UnAfraid/wgtunnel/pkg/wireguard/driver"
)

const (
	defaultMTU = 1420

	routeProtocolStatic = netlink.RouteProtocol(3)
	routeTypeUnicast    = 1

	// Default routes go to their own table, selected for every packet that
	// does not carry the device fwmark, so the main table keeps the route to
	// the peer endpoints.
	defaultRouteTable = 51820
	defaultRouteMark  = 51820

	srcValidMarkPath = "/proc/sys/net/ipv4/conf/all/src_valid_mark"
)

func Register() {
	driver.Register(driver.KindUserspace, func(_ context.Context, options driver.Options) (driver.Backend, error) {
		return NewUserspaceBackend(options), nil
	}, true)
}

type tunnel struct {
	device *device.Device
	config *wgconf.Config
	rules  []*netlink.Rule
}

// userspaceBackend runs wireguard-go in process on a TUN device.
type userspaceBackend struct {
	resolver wgconf.HostResolver

	mu      sync.Mutex
	tunnels map[string]*tunnel
}

func NewUserspaceBackend(options driver.Options) driver.Backend {
	return &userspaceBackend{
		resolver: options.Resolver,
		tunnels:  make(map[string]*tunnel),
	}
}

func (b *userspaceBackend) Kind() driver.Kind {
	return driver.KindUserspace
}

func (b *userspaceBackend) Up(ctx context.Context, name string, config *wgconf.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.tunnels[name]; ok {
		rules, err := b.configure(ctx, name, t.device, config, t.rules)
		t.rules = rules
		if err != nil {
			return err
		}
		t.config = config
		return nil
	}

	mtu := defaultMTU
	if configuredMTU, ok := config.Interface().MTU(); ok {
		mtu = configuredMTU
	}

	tunDevice, err := tun.CreateTUN(name, mtu)
	if err != nil {
		return fmt.Errorf("failed to create tun device %s: %w", name, err)
	}

	logger := logrus.WithField("interface", name)
	dev := device.NewDevice(tunDevice, conn.NewDefaultBind(), &device.Logger{
		Verbosef: func(format string, args ...any) {
			logger.Debugf(format, args...)
		},
		Errorf: func(format string, args ...any) {
			logger.Errorf(format, args...)
		},
	})

	rules, err := b.configure(ctx, name, dev, config, nil)
	if err != nil {
		deleteRules(rules)
		dev.Close()
		return err
	}
	if err := dev.Up(); err != nil {
		deleteRules(rules)
		dev.Close()
		return fmt.Errorf("failed to bring device %s up: %w", name, err)
	}

	b.tunnels[name] = &tunnel{
		device: dev,
		config: config,
		rules:  rules,
	}

	logger.Info("userspace tunnel up")
	return nil
}

// configure applies config to dev and its interface. It returns the policy
// rules now installed for the tunnel, also when it fails part way.
func (b *userspaceBackend) configure(ctx context.Context, name string, dev *device.Device, config *wgconf.Config, rules []*netlink.Rule) ([]*netlink.Rule, error) {
	if err := dev.IpcSet(config.UAPI(ctx, b.resolver)); err != nil {
		return rules, fmt.Errorf("failed to configure device %s: %w", name, err)
	}

	allowedIPs := peerAllowedIPs(config)
	families := defaultRouteFamilies(allowedIPs)
	if len(families) > 0 {
		if err := dev.IpcSet(fmt.Sprintf("fwmark=%d\n", defaultRouteMark)); err != nil {
			return rules, fmt.Errorf("failed to set device %s fwmark: %w", name, err)
		}
	}

	if err := configureInterface(name, config, allowedIPs); err != nil {
		return rules, fmt.Errorf("failed to configure interface %s: %w", name, err)
	}

	rules, err := configureRules(families, rules)
	if err != nil {
		return rules, fmt.Errorf("failed to configure routing rules for %s: %w", name, err)
	}
	return rules, nil
}

func (b *userspaceBackend) Down(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tunnels[name]
	if !ok {
		return nil
	}

	delete(b.tunnels, name)
	deleteRules(t.rules)
	t.device.Close()

	logrus.WithField("interface", name).Info("userspace tunnel down")
	return nil
}

func (b *userspaceBackend) State(_ context.Context, name string) (driver.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tunnels[name]; ok {
		return driver.StateUp, nil
	}
	return driver.StateDown, nil
}

func (b *userspaceBackend) Statistics(_ context.Context, name string) (*driver.Statistics, error) {
	b.mu.Lock()
	t, ok := b.tunnels[name]
	b.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrTunnelNotFound, name)
	}

	var uapiConf strings.Builder
	if err := t.device.IpcGetOperation(&uapiConf); err != nil {
		return nil, fmt.Errorf("failed to get device %s config: %w", name, err)
	}
	return parseStatistics(uapiConf.String())
}

func (b *userspaceBackend) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, t := range b.tunnels {
		deleteRules(t.rules)
		t.device.Close()
		delete(b.tunnels, name)
	}
	return nil
}

func findInterface(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var linkNotFoundErr netlink.LinkNotFoundError
		if os.IsNotExist(err) || errors.As(err, &linkNotFoundErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find interface by name %s: %w", name, err)
	}
	return link, nil
}

// configureInterface assigns the interface addresses, brings the link up and
// routes every allowed IP through it.
func configureInterface(name string, config *wgconf.Config, allowedIPs []net.IPNet) error {
	link, err := findInterface(name)
	if err != nil {
		return err
	}
	if link == nil {
		return fmt.Errorf("interface not found: %s", name)
	}

	existing, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return fmt.Errorf("failed to get interface %s address list: %w", name, err)
	}

	for _, address := range config.Interface().Addresses() {
		addr := &netlink.Addr{
			IPNet: &net.IPNet{
				IP:   address.Address().AsSlice(),
				Mask: net.CIDRMask(address.Bits(), address.Address().BitLen()),
			},
		}

		if slices.ContainsFunc(existing, func(a netlink.Addr) bool { return a.Equal(*addr) }) {
			continue
		}
		if err := netlink.AddrAdd(link, addr); err != nil && !os.IsExist(err) {
			return fmt.Errorf("failed to add address %s: %w", address, err)
		}
	}

	if link.Attrs().OperState != netlink.OperUp {
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("failed to set interface up: %w", err)
		}
	}

	return configureRoutes(link, allowedIPs)
}

func peerAllowedIPs(config *wgconf.Config) []net.IPNet {
	var allowedIPs []net.IPNet
	for _, peer := range config.Peers() {
		for _, allowedIP := range peer.AllowedIPs() {
			allowedIPs = append(allowedIPs, allowedIP.IPNet())
		}
	}
	return allowedIPs
}

func isDefaultRoute(ipNet net.IPNet) bool {
	ones, _ := ipNet.Mask.Size()
	return ones == 0
}

func ipNetFamily(ipNet net.IPNet) int {
	if ipNet.IP.To4() != nil {
		return netlink.FAMILY_V4
	}
	return netlink.FAMILY_V6
}

// defaultRouteFamilies returns the address families with a default route
// among allowedIPs.
func defaultRouteFamilies(allowedIPs []net.IPNet) []int {
	var families []int
	for _, allowedIP := range allowedIPs {
		if !isDefaultRoute(allowedIP) {
			continue
		}
		if family := ipNetFamily(allowedIP); !slices.Contains(families, family) {
			families = append(families, family)
		}
	}
	slices.Sort(families)
	return families
}

// policyRules returns the rules sending unmarked traffic of family to the
// default route table while keeping every non-default main table route.
func policyRules(family int) []*netlink.Rule {
	viaTunnel := netlink.NewRule()
	viaTunnel.Family = family
	viaTunnel.Table = defaultRouteTable
	viaTunnel.Mark = defaultRouteMark
	viaTunnel.Invert = true

	mainWithoutDefault := netlink.NewRule()
	mainWithoutDefault.Family = family
	mainWithoutDefault.Table = unix.RT_TABLE_MAIN
	mainWithoutDefault.SuppressPrefixlen = 0

	return []*netlink.Rule{viaTunnel, mainWithoutDefault}
}

// configureRules installs the policy rules for families and removes the
// installed rules of any other family.
func configureRules(families []int, installed []*netlink.Rule) ([]*netlink.Rule, error) {
	var kept []*netlink.Rule
	for _, rule := range installed {
		if slices.Contains(families, rule.Family) {
			kept = append(kept, rule)
			continue
		}
		deleteRules([]*netlink.Rule{rule})
	}

	if len(families) > 0 {
		if err := os.WriteFile(srcValidMarkPath, []byte("1"), 0644); err != nil {
			logrus.WithError(err).Warn("failed to enable src_valid_mark")
		}
	}

	for _, family := range families {
		if slices.ContainsFunc(kept, func(rule *netlink.Rule) bool { return rule.Family == family }) {
			continue
		}
		for _, rule := range policyRules(family) {
			if err := netlink.RuleAdd(rule); err != nil && !errors.Is(err, unix.EEXIST) {
				return kept, fmt.Errorf("failed to add rule for table %d: %w", rule.Table, err)
			}
			kept = append(kept, rule)
		}
	}
	return kept, nil
}

func deleteRules(rules []*netlink.Rule) {
	for _, rule := range rules {
		if err := netlink.RuleDel(rule); err != nil && !errors.Is(err, unix.ENOENT) {
			logrus.
				WithError(err).
				WithField("table", rule.Table).
				Warn("failed to delete routing rule")
		}
	}
}

func configureRoutes(link netlink.Link, allowedIPs []net.IPNet) error {
	routes, err := netlink.RouteListFiltered(netlink.FAMILY_ALL, &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Table:     unix.RT_TABLE_UNSPEC,
	}, netlink.RT_FILTER_OIF|netlink.RT_FILTER_TABLE)
	if err != nil {
		return fmt.Errorf("failed to get routes: %w", err)
	}

	routesToAdd, routesToRemove := computeRoutes(link.Attrs().Index, routes, allowedIPs)

	for _, route := range routesToAdd {
		if err := netlink.RouteAdd(route); err != nil {
			if !errors.Is(err, unix.EEXIST) {
				return fmt.Errorf("failed to add route for %s: %w", route.Dst, err)
			}
			logrus.
				WithField("name", link.Attrs().Name).
				WithField("route", route.Dst.String()).
				Warn("route already exists on another link")
			continue
		}

		logrus.
			WithField("name", link.Attrs().Name).
			WithField("route", route.Dst.String()).
			Debug("route added")
	}

	for _, route := range routesToRemove {
		if err := netlink.RouteDel(route); err != nil {
			return fmt.Errorf("failed to delete route for %s: %w", route.Dst, err)
		}

		logrus.
			WithField("name", link.Attrs().Name).
			WithField("route", route.Dst.String()).
			Debug("route deleted")
	}
	return nil
}

// computeRoutes returns the allowed IPs that have no static route on the link
// yet, and the static routes no longer backed by an allowed IP. Default routes
// belong to defaultRouteTable, everything else to the main table.
func computeRoutes(linkIndex int, existingRoutes []netlink.Route, allowedIPs []net.IPNet) ([]*netlink.Route, []*netlink.Route) {
	sameRoute := func(route netlink.Route, ipNet net.IPNet) bool {
		return route.Dst != nil &&
			route.Dst.IP.Equal(ipNet.IP) &&
			slices.Equal(route.Dst.Mask, ipNet.Mask) &&
			routeTable(route) == allowedIPTable(ipNet)
	}

	var routesToAdd []*netlink.Route
	for i, allowedIP := range allowedIPs {
		if slices.ContainsFunc(existingRoutes, func(route netlink.Route) bool { return sameRoute(route, allowedIP) }) {
			continue
		}
		routesToAdd = append(routesToAdd, &netlink.Route{
			LinkIndex: linkIndex,
			Scope:     netlink.SCOPE_LINK,
			Dst:       &allowedIPs[i],
			Protocol:  routeProtocolStatic,
			Type:      routeTypeUnicast,
			Table:     allowedIPTable(allowedIP),
		})
	}

	var routesToRemove []*netlink.Route
	for i, route := range existingRoutes {
		if route.Protocol != routeProtocolStatic {
			continue
		}
		if slices.ContainsFunc(allowedIPs, func(allowedIP net.IPNet) bool { return sameRoute(route, allowedIP) }) {
			continue
		}
		routesToRemove = append(routesToRemove, &existingRoutes[i])
	}

	return routesToAdd, routesToRemove
}

func allowedIPTable(ipNet net.IPNet) int {
	if isDefaultRoute(ipNet) {
		return defaultRouteTable
	}
	return unix.RT_TABLE_MAIN
}

func routeTable(route netlink.Route) int {
	if route.Table == unix.RT_TABLE_UNSPEC {
		return unix.RT_TABLE_MAIN
	}
	return route.Table
}
