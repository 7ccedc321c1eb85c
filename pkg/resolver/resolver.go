package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDNSPort  = "53"
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = time.Minute
)

var resolvConfPath = "/etc/resolv.conf"

// DefaultServers are queried when no servers are configured and the system
// has no resolv.conf, as on Android.
var DefaultServers = []string{"1.1.1.1", "8.8.8.8", "2606:4700:4700::1111"}

type cacheEntry struct {
	addrs   []netip.Addr
	expires time.Time
}

// Result is delivered by LookupHostAsync.
type Result struct {
	Addrs []netip.Addr
	Err   error
}

// Resolver looks up A and AAAA records for endpoint hostnames. Lookups are
// bounded by a timeout and answers are cached for at most the record TTL.
type Resolver struct {
	servers  []string
	timeout  time.Duration
	cacheTTL time.Duration
	client   *dns.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// New creates a Resolver querying servers in order. Servers may carry a port;
// when none are given the nameservers from /etc/resolv.conf are used, falling
// back to DefaultServers.
func New(servers []string, timeout time.Duration, cacheTTL time.Duration) (*Resolver, error) {
	if len(servers) == 0 {
		servers = systemServers()
	}
	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if cacheTTL < 0 {
		cacheTTL = defaultCacheTTL
	}

	normalized := make([]string, 0, len(servers))
	for _, server := range servers {
		normalized = append(normalized, withDefaultPort(server))
	}

	return &Resolver{
		servers:  normalized,
		timeout:  timeout,
		cacheTTL: cacheTTL,
		client: &dns.Client{
			Dialer: &net.Dialer{
				Timeout: timeout,
			},
		},
		cache: make(map[string]cacheEntry),
		now:   time.Now,
	}, nil
}

func systemServers() []string {
	clientConfig, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(clientConfig.Servers) == 0 {
		logrus.
			WithError(err).
			WithField("path", resolvConfPath).
			WithField("servers", DefaultServers).
			Warn("no system dns servers, using defaults")
		return slices.Clone(DefaultServers)
	}

	servers := make([]string, 0, len(clientConfig.Servers))
	for _, server := range clientConfig.Servers {
		servers = append(servers, net.JoinHostPort(server, clientConfig.Port))
	}
	return servers
}

func withDefaultPort(server string) string {
	if _, err := netip.ParseAddrPort(server); err == nil {
		return server
	}
	if addr, err := netip.ParseAddr(strings.Trim(server, "[]")); err == nil {
		return net.JoinHostPort(addr.String(), defaultDNSPort)
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, defaultDNSPort)
}

// LookupHost returns the addresses of host. Numeric hosts are returned as they
// are without any network I/O.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return []netip.Addr{addr}, nil
	}

	fqdn := dns.Fqdn(strings.ToLower(host))
	if addrs, ok := r.cached(fqdn); ok {
		return addrs, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		addrs []netip.Addr
		ttl   = r.cacheTTL
		errs  [2]error
	)

	// A failure of one record type must not discard the other's answer.
	var g errgroup.Group
	for n, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		n, qtype := n, qtype
		g.Go(func() error {
			answers, answerTTL, err := r.query(ctx, fqdn, qtype)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[n] = err
				logrus.
					WithError(err).
					WithField("name", fqdn).
					WithField("type", dns.TypeToString[qtype]).
					Debug("dns query failed")
				return nil
			}
			addrs = append(addrs, answers...)
			if len(answers) > 0 && answerTTL < ttl {
				ttl = answerTTL
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(addrs) == 0 {
		for _, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
			}
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", host, ErrNoAddresses)
	}

	// A records first, so callers preferring IPv4 pick them up.
	ordered := make([]netip.Addr, 0, len(addrs))
	for _, addr := range addrs {
		if addr.Is4() {
			ordered = append(ordered, addr)
		}
	}
	for _, addr := range addrs {
		if !addr.Is4() {
			ordered = append(ordered, addr)
		}
	}

	r.store(fqdn, ordered, ttl)
	return ordered, nil
}

// LookupHostAsync runs LookupHost in the background. The channel receives
// exactly one Result and is then closed.
func (r *Resolver) LookupHostAsync(ctx context.Context, host string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		addrs, err := r.LookupHost(ctx, host)
		ch <- Result{Addrs: addrs, Err: err}
	}()
	return ch
}

func (r *Resolver) query(ctx context.Context, fqdn string, qtype uint16) ([]netip.Addr, time.Duration, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		response, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			logrus.
				WithError(err).
				WithField("server", server).
				WithField("name", fqdn).
				Debug("dns exchange failed")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		switch response.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, 0, ErrNotFound
		default:
			lastErr = fmt.Errorf("server %s answered %s", server, dns.RcodeToString[response.Rcode])
			continue
		}

		var (
			addrs []netip.Addr
			ttl   time.Duration
		)
		for _, answer := range response.Answer {
			var ip net.IP
			switch rr := answer.(type) {
			case *dns.A:
				ip = rr.A
			case *dns.AAAA:
				ip = rr.AAAA
			default:
				continue
			}
			addr, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			addrs = append(addrs, addr.Unmap())
			recordTTL := time.Duration(answer.Header().Ttl) * time.Second
			if ttl == 0 || recordTTL < ttl {
				ttl = recordTTL
			}
		}
		return addrs, ttl, nil
	}
	return nil, 0, lastErr
}

func (r *Resolver) cached(fqdn string) ([]netip.Addr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[fqdn]
	if !ok {
		return nil, false
	}
	if !r.now().Before(entry.expires) {
		delete(r.cache, fqdn)
		return nil, false
	}
	return append([]netip.Addr(nil), entry.addrs...), true
}

func (r *Resolver) store(fqdn string, addrs []netip.Addr, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[fqdn] = cacheEntry{
		addrs:   append([]netip.Addr(nil), addrs...),
		expires: r.now().Add(ttl),
	}
}
