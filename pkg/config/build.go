package config

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/orchestrator"
	"github.com/kylerisse/dirhealth/pkg/probe"
	"github.com/kylerisse/dirhealth/pkg/probe/dnsprobe"
	"github.com/kylerisse/dirhealth/pkg/probe/icmp"
	"github.com/kylerisse/dirhealth/pkg/probe/local"
	"github.com/kylerisse/dirhealth/pkg/probe/netprobe"
	"github.com/kylerisse/dirhealth/pkg/probe/remote"
)

// Probes are the collaborators built from Settings.
type Probes struct {
	Set probe.Set

	// Discoverer is nil when discovery is disabled or no domain is set.
	Discoverer probe.Discoverer
}

// CredentialsValue returns the alternate credentials, or nil when no
// username is configured.
func (s *Settings) CredentialsValue() *probe.Credentials {
	if s.Credentials.Username == "" {
		return nil
	}
	creds := &probe.Credentials{Username: s.Credentials.Username}
	if s.Credentials.PasswordEnv != "" {
		creds.Password = os.Getenv(s.Credentials.PasswordEnv)
	}
	return creds
}

// BuildProbes creates every collaborator the checks use. When no DNS
// server can be found the resolver is left unset, which is an error only
// when targets must be discovered.
func (s *Settings) BuildProbes(logger *logrus.Logger) (*Probes, error) {
	set := probe.Set{Domain: s.Domain, Timeout: s.Run.ProbeTimeout}

	resolverOpts := []dnsprobe.Option{dnsprobe.WithTimeout(s.Run.ProbeTimeout)}
	if s.Discovery.DNSServer != "" {
		resolverOpts = append(resolverOpts, dnsprobe.WithServer(s.Discovery.DNSServer))
	}
	if s.Discovery.ResolvConf != "" {
		resolverOpts = append(resolverOpts, dnsprobe.WithResolvConf(s.Discovery.ResolvConf))
	}
	resolver, err := dnsprobe.New(resolverOpts...)
	switch {
	case errors.Is(err, dnsprobe.ErrNoServer):
		// Checks that resolve names report the resolver as unavailable.
		logger.Warnf("DNS lookups disabled: %v", err)
	case err != nil:
		return nil, err
	default:
		set.Resolver = resolver
	}

	pinger, err := icmp.New(
		icmp.WithMode(icmp.Mode(s.ICMP.Mode)),
		icmp.WithCount(s.ICMP.Count),
		icmp.WithPrivileged(s.ICMP.Privileged),
		icmp.WithTimeout(s.ICMP.Timeout),
	)
	if err != nil {
		return nil, err
	}
	set.Pinger = pinger

	prober, err := netprobe.New(netprobe.WithDialTimeout(s.Run.ProbeTimeout))
	if err != nil {
		return nil, err
	}
	set.Ports = prober
	set.Certs = prober

	var fallback probe.ResourceSampler
	if !s.Remote.Disabled {
		client, err := remote.New(
			remote.WithShell(s.Remote.Shell),
			remote.WithDomain(s.Domain),
			remote.WithCredentials(s.CredentialsValue()),
			remote.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		set.Remote = client
		set.Directory = client
		fallback = client
	}

	if s.Local.Enabled {
		localOpts := []local.Option{local.WithFallback(fallback)}
		if s.Local.DataPath != "" {
			localOpts = append(localOpts, local.WithDataPath(s.Local.DataPath))
		}
		sampler, err := local.New(localOpts...)
		if err != nil {
			return nil, err
		}
		set.Resources = sampler
	}

	p := &Probes{Set: set}
	if !s.Discovery.Disabled && s.Domain != "" {
		if resolver == nil {
			if len(s.Targets) > 0 {
				return p, nil
			}
			return nil, errors.Wrap(dnsprobe.ErrNoServer, "target discovery needs a DNS server; set discovery.dns_server or supply targets")
		}
		d, err := dnsprobe.NewDiscoverer(resolver, s.Domain)
		if err != nil {
			return nil, err
		}
		p.Discoverer = d
	}
	return p, nil
}

// RunnerOptions returns the orchestrator options for the run section.
// metrics may be nil.
func (s *Settings) RunnerOptions(logger *logrus.Logger, p *Probes, metrics *orchestrator.Metrics) []orchestrator.RunnerOption {
	opts := []orchestrator.RunnerOption{
		orchestrator.WithLogger(logger),
		orchestrator.WithParallelism(s.Run.Parallelism),
		orchestrator.WithCheckTimeout(s.Run.CheckTimeout),
		orchestrator.WithRateLimit(s.Run.Rate, s.Run.Burst),
	}
	if p != nil && p.Discoverer != nil {
		opts = append(opts, orchestrator.WithDiscoverer(p.Discoverer))
	}
	if metrics != nil {
		opts = append(opts, orchestrator.WithMetrics(metrics))
	}
	return opts
}

// RunOptions returns what a run evaluates.
func (s *Settings) RunOptions() (orchestrator.Options, error) {
	o := orchestrator.Options{
		Targets:        s.Targets,
		IncludeHealthy: s.Run.IncludeHealthy,
	}
	for _, name := range s.Run.Categories {
		c, err := check.ParseCategory(name)
		if err != nil {
			return o, errors.Wrap(err, "run.categories")
		}
		o.Categories = append(o.Categories, c)
	}
	if len(s.Checks) > 0 {
		o.Overrides = make(map[check.Category]map[string]any, len(s.Checks))
		for name, cfg := range s.Checks {
			c, err := check.ParseCategory(name)
			if err != nil {
				return o, errors.Wrap(err, "checks")
			}
			o.Overrides[c] = cfg
		}
	}
	return o, nil
}
