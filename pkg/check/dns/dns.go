// Package dns implements the name-resolution health check. The target is
// queried directly as a DNS server for its own A record, and the configured
// resolver is used to confirm the target's A, PTR and locator SRV
// registrations.
package dns

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryDNS

	// CheckName identifies the Result within the category.
	CheckName = "DNSHealth"

	// DefaultTimeout is the default DNS query timeout.
	DefaultTimeout = 3 * time.Second

	// DefaultPort is the port the target is queried on.
	DefaultPort = 53

	// LocatorPrefix is prepended to the domain to form the domain
	// controller locator SRV name.
	LocatorPrefix = probe.LocatorPrefix
)

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "dns",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "server", Label: "target answers DNS queries", Unit: evaluate.UnitBool},
		{Key: "queryTime", Label: "target DNS query time", Unit: "ms"},
		{Key: "aRecord", Label: "target A record resolves", Unit: evaluate.UnitBool},
		{Key: "ptrRecord", Label: "target PTR record resolves", Unit: evaluate.UnitBool},
		{Key: "srvRecord", Label: "target registered in locator SRV records", Unit: evaluate.UnitBool},
	},
}

// DefaultThresholds returns the query time bounds in milliseconds.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"queryTime": evaluate.Above(250, 1000),
	}
}

var closing = evaluate.Closing{
	Message:         "DNS service and registrations are healthy",
	Recommendations: []string{"Continue monitoring DNS registrations"},
}

// Check implements check.Check using DNS queries.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
	port       int
	timeout    time.Duration
	client     *dns.Client
}

// Option is a functional option for configuring a DNS Check.
type Option func(*Check) error

// WithTimeout sets the DNS query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithPort sets the port the target is queried on.
func WithPort(port int) Option {
	return func(c *Check) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %d", port)
		}
		c.port = port
		return nil
	}
}

// New creates a DNS Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
		port:       DefaultPort,
		timeout:    DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("dns: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	}

	c.client = &dns.Client{
		Timeout: c.timeout,
	}
	return c, nil
}

// Type returns the check category.
func (c *Check) Type() check.Category {
	return TypeName
}

// Describe returns the Descriptor for this check.
func (c *Check) Describe() check.Descriptor {
	return Desc
}

// Run queries the target as a DNS server and checks its registrations.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	var (
		signals []evaluate.Signal
		errs    check.SignalErrors
	)
	data := map[string]any{}
	name := normalizeFQDN(target.Name)

	// The target as a DNS server.
	answers, rtt, err := c.queryServer(ctx, target.Host(), name)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	signals = append(signals, evaluate.Probe("server", err == nil,
		fmt.Sprintf("%s does not answer DNS queries: %v", target.Name, err),
		fmt.Sprintf("Verify the DNS Server service on %s is running and listening on port %d", target.Name, c.port)))
	if err != nil {
		errs.Add("server", err)
	} else {
		ms := float64(rtt) / float64(time.Millisecond)
		th := c.thresholds["queryTime"]
		data["serverAnswers"] = answers
		data["queryTimeMs"] = ms
		signals = append(signals, evaluate.Numeric("queryTime", ms, "ms", th).
			Warn("DNS query time on %s is %.0fms (warning threshold: %vms)", target.Name, ms, th.Warning).
			Crit("DNS query time on %s is %.0fms (critical threshold: %vms)", target.Name, ms, th.Critical).
			Fix(fmt.Sprintf("Investigate DNS server load and forwarders on %s", target.Name)))
	}

	if c.deps.Resolver == nil {
		errs.Add("resolver", probe.ErrUnavailable)
	} else {
		signals = append(signals, c.registrations(ctx, target, name, data, &errs)...)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	errs.Record(data)
	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

// registrations checks the target's A, PTR and locator SRV records through
// the configured resolver.
func (c *Check) registrations(ctx context.Context, target check.Target, name string, data map[string]any, errs *check.SignalErrors) []evaluate.Signal {
	var signals []evaluate.Signal

	pctx, cancel := c.deps.Context(ctx)
	addrs, err := c.deps.Resolver.LookupHost(pctx, name)
	cancel()
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("no A records")
	}
	signals = append(signals, evaluate.Probe("aRecord", err == nil,
		fmt.Sprintf("A record for %s does not resolve: %v", name, err),
		fmt.Sprintf("Re-register the DNS records of %s", target.Name)))
	if err != nil {
		errs.Add("aRecord", err)
	} else {
		data["addresses"] = addrs

		pctx, cancel := c.deps.Context(ctx)
		names, err := c.deps.Resolver.LookupAddr(pctx, addrs[0])
		cancel()
		if err == nil && len(names) == 0 {
			err = fmt.Errorf("no PTR records")
		}
		signals = append(signals, evaluate.WarnProbe("ptrRecord", err == nil,
			fmt.Sprintf("PTR record for %s does not resolve", addrs[0]),
			fmt.Sprintf("Create the reverse lookup record for %s", addrs[0])))
		if err != nil {
			errs.Add("ptrRecord", err)
		} else {
			data["ptr"] = names
		}
	}

	if c.deps.Domain == "" {
		return signals
	}
	srvName := LocatorPrefix + normalizeFQDN(c.deps.Domain)
	pctx, cancel = c.deps.Context(ctx)
	records, err := c.deps.Resolver.LookupSRV(pctx, srvName)
	cancel()
	if err != nil {
		errs.Add("srvRecord", err)
	}
	registered := false
	for _, r := range records {
		if registeredAs(r.Target, name) {
			registered = true
			break
		}
	}
	data["srvRegistered"] = registered
	signals = append(signals, evaluate.WarnProbe("srvRecord", registered,
		fmt.Sprintf("%s is not registered under %s", target.Name, srvName),
		fmt.Sprintf("Restart the Netlogon service on %s to re-register its SRV records", target.Name)))
	return signals
}

// registeredAs reports whether an SRV target names the server name. An
// unqualified name matches on the first label of the SRV target.
func registeredAs(srvTarget, name string) bool {
	srvTarget = normalizeFQDN(srvTarget)
	if srvTarget == "" || name == "" {
		return false
	}
	if srvTarget == name {
		return true
	}
	if strings.Contains(name, ".") {
		return false
	}
	short, _, _ := strings.Cut(srvTarget, ".")
	return short == name
}

// queryServer asks the target for the A records of name and returns the
// answers and round-trip time.
func (c *Check) queryServer(ctx context.Context, host, name string) ([]string, time.Duration, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeA)
	msg.RecursionDesired = true

	server := net.JoinHostPort(host, strconv.Itoa(c.port))
	resp, rtt, err := c.client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, 0, fmt.Errorf("dns %s %s: %w", qtypeName(dns.TypeA), name, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, rtt, fmt.Errorf("dns %s %s: rcode %s", qtypeName(dns.TypeA), name, dns.RcodeToString[resp.Rcode])
	}

	var answers []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			answers = append(answers, normalizeIP(a.A.String()))
		}
	}
	if len(answers) == 0 {
		return nil, rtt, fmt.Errorf("dns %s %s: empty answer", qtypeName(dns.TypeA), name)
	}
	return answers, rtt, nil
}

// normalizeIP parses and re-serializes an IP address string for comparison,
// handling IPv4-in-IPv6 representations and leading zeros.
func normalizeIP(s string) string {
	ip := net.ParseIP(s)
	if ip == nil {
		return s
	}
	return ip.String()
}

// normalizeFQDN strips the trailing dot and lowercases so that
// "DC1.example.com." and "dc1.example.com" compare equal.
func normalizeFQDN(s string) string {
	return strings.ToLower(strings.TrimSuffix(s, "."))
}

// qtypeName returns a human-readable record type name for error messages.
func qtypeName(qtype uint16) string {
	switch qtype {
	case dns.TypeA:
		return "A"
	case dns.TypeAAAA:
		return "AAAA"
	case dns.TypePTR:
		return "PTR"
	case dns.TypeSRV:
		return "SRV"
	default:
		return fmt.Sprintf("TYPE%d", qtype)
	}
}

// Factory creates a DNS Check from a config map.
// Optional keys:
//   - "timeout" (string): duration string (e.g. "5s"), default "3s"
//   - "port" (number): default 53
//   - "queryTime_warning", "queryTime_critical" (number): milliseconds
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	var opts []Option

	if d, ok, err := check.ConfigDuration(config, "timeout"); err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	} else if ok {
		opts = append(opts, WithTimeout(d))
	}
	if p, ok, err := check.ConfigInt(config, "port"); err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	} else if ok {
		opts = append(opts, WithPort(p))
	}

	c, err := New(deps, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	}
	return c, nil
}
