// Package dnsprobe implements probe.Resolver and probe.Discoverer with
// direct DNS queries against a configured server.
package dnsprobe

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"

	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// DefaultTimeout is the default per-query timeout.
	DefaultTimeout = 5 * time.Second

	// DefaultResolvConf is read for a server when none is configured.
	DefaultResolvConf = "/etc/resolv.conf"
)

var (
	// ErrNotFound is returned when a name does not exist or has no records
	// of the requested type.
	ErrNotFound = errors.New("not found")

	// ErrNoServer is returned by New when no server is configured and none
	// can be read from the resolver configuration file.
	ErrNoServer = errors.New("no server configured")
)

// Resolver sends queries to a single DNS server.
type Resolver struct {
	server     string
	resolvConf string
	timeout    time.Duration
	client     *dns.Client
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver) error

// WithServer sets the server queried, as host or host:port.
func WithServer(server string) Option {
	return func(r *Resolver) error {
		if server == "" {
			return errors.New("server must not be empty")
		}
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
		r.server = server
		return nil
	}
}

// WithResolvConf sets the file read for a server when WithServer is not
// given.
func WithResolvConf(path string) Option {
	return func(r *Resolver) error {
		if path == "" {
			return errors.New("resolv.conf path must not be empty")
		}
		r.resolvConf = path
		return nil
	}
}

// WithTimeout sets the per-query timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) error {
		if d <= 0 {
			return errors.Errorf("timeout must be positive, got %v", d)
		}
		r.timeout = d
		return nil
	}
}

// New creates a Resolver. Without WithServer the first nameserver of the
// resolv.conf file is used; when there is none New returns an error
// wrapping ErrNoServer.
func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{timeout: DefaultTimeout, resolvConf: DefaultResolvConf}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, errors.Wrap(err, "dnsprobe")
		}
	}
	if r.server == "" {
		conf, err := dns.ClientConfigFromFile(r.resolvConf)
		if err != nil {
			return nil, errors.Wrapf(ErrNoServer, "dnsprobe: %v", err)
		}
		if len(conf.Servers) == 0 {
			return nil, errors.Wrapf(ErrNoServer, "dnsprobe: no nameserver in %s", r.resolvConf)
		}
		r.server = net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	r.client = &dns.Client{Timeout: r.timeout}
	return r, nil
}

// Server returns the host:port queries are sent to.
func (r *Resolver) Server() string {
	return r.server
}

// query sends a single question and returns the answer section. NXDOMAIN
// and an empty answer are reported as ErrNotFound.
func (r *Resolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", dns.TypeToString[qtype], name)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, errors.Wrapf(ErrNotFound, "%s %s", dns.TypeToString[qtype], name)
	default:
		return nil, errors.Errorf("%s %s: rcode %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
	}
	if len(resp.Answer) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "%s %s", dns.TypeToString[qtype], name)
	}
	return resp.Answer, nil
}

// LookupHost returns the A and AAAA addresses of name. A literal IP is
// returned unchanged.
func (r *Resolver) LookupHost(ctx context.Context, name string) ([]string, error) {
	if ip := net.ParseIP(name); ip != nil {
		return []string{ip.String()}, nil
	}

	var addrs []string
	var firstErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answer, err := r.query(ctx, name, qtype)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, rr := range answer {
			switch v := rr.(type) {
			case *dns.A:
				addrs = append(addrs, v.A.String())
			case *dns.AAAA:
				addrs = append(addrs, v.AAAA.String())
			}
		}
	}
	if len(addrs) == 0 {
		if firstErr == nil {
			firstErr = errors.Wrapf(ErrNotFound, "host %s", name)
		}
		return nil, firstErr
	}
	return addrs, nil
}

// LookupAddr returns the PTR names of addr without trailing dots.
func (r *Resolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	arpa, err := dns.ReverseAddr(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "PTR %s", addr)
	}
	answer, err := r.query(ctx, arpa, dns.TypePTR)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, rr := range answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	if len(names) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "PTR %s", addr)
	}
	return names, nil
}

// LookupSRV returns the SRV records registered under name, ordered by
// priority, then descending weight, then target.
func (r *Resolver) LookupSRV(ctx context.Context, name string) ([]probe.SRV, error) {
	answer, err := r.query(ctx, name, dns.TypeSRV)
	if err != nil {
		return nil, err
	}
	var out []probe.SRV
	for _, rr := range answer {
		if srv, ok := rr.(*dns.SRV); ok {
			out = append(out, probe.SRV{
				Target:   strings.TrimSuffix(srv.Target, "."),
				Port:     srv.Port,
				Priority: srv.Priority,
				Weight:   srv.Weight,
			})
		}
	}
	if len(out) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "SRV %s", name)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

// Discoverer finds the directory servers of a domain through their locator
// SRV registrations.
type Discoverer struct {
	resolver probe.Resolver
	domain   string
}

// NewDiscoverer creates a Discoverer for domain using resolver.
func NewDiscoverer(resolver probe.Resolver, domain string) (*Discoverer, error) {
	if resolver == nil {
		return nil, errors.New("dnsprobe: resolver must not be nil")
	}
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return nil, errors.New("dnsprobe: domain must not be empty")
	}
	return &Discoverer{resolver: resolver, domain: domain}, nil
}

// Discover returns the registered servers in SRV preference order with
// duplicates removed.
func (d *Discoverer) Discover(ctx context.Context) ([]string, error) {
	records, err := d.resolver.LookupSRV(ctx, probe.LocatorPrefix+d.domain)
	if err != nil {
		return nil, errors.Wrapf(err, "discover servers of %s", d.domain)
	}
	seen := make(map[string]bool, len(records))
	var servers []string
	for _, rec := range records {
		name := strings.ToLower(strings.TrimSuffix(rec.Target, "."))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		servers = append(servers, name)
	}
	if len(servers) == 0 {
		return nil, errors.Errorf("discover servers of %s: no registrations", d.domain)
	}
	return servers, nil
}
