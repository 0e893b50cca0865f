// Package probe defines the external collaborators health checks depend on:
// name resolution, reachability and port probes, TLS certificate retrieval,
// remote queries against a server and directory-metadata queries.
//
// The interfaces are deliberately narrow. Concrete implementations live in
// the subpackages (dnsprobe, icmp, netprobe, remote, local) and test fakes in
// probetest. Every call takes a context; callers bound it with Set.Context so
// that no probe blocks indefinitely.
package probe

import (
	"context"
	"crypto/x509"
	"errors"
	"time"
)

const (
	// DefaultTimeout bounds a single collaborator call when none is configured.
	DefaultTimeout = 30 * time.Second

	// LocatorPrefix is prepended to the domain name to form the SRV owner
	// name under which every directory server registers itself.
	LocatorPrefix = "_ldap._tcp.dc._msdcs."
)

// ErrNoData is returned by collaborators that answered successfully but had
// nothing to report, e.g. a server with no inbound replication links.
// Callers treat it as an empty result, not as a failure.
var ErrNoData = errors.New("no data")

// Credentials are alternate credentials for remote queries. A nil
// *Credentials means the caller's ambient identity is used.
type Credentials struct {
	Username string
	Password string
}

// Resolver performs name-resolution queries.
type Resolver interface {
	// LookupHost returns the addresses of a host name.
	LookupHost(ctx context.Context, name string) ([]string, error)

	// LookupAddr returns the names of an address (PTR).
	LookupAddr(ctx context.Context, addr string) ([]string, error)

	// LookupSRV returns the records registered under an SRV owner name.
	LookupSRV(ctx context.Context, name string) ([]SRV, error)
}

// Pinger measures ICMP-style reachability.
type Pinger interface {
	Ping(ctx context.Context, host string) (time.Duration, error)
}

// PortProber checks TCP port reachability.
type PortProber interface {
	ProbePort(ctx context.Context, host string, port int) (time.Duration, error)
}

// CertFetcher retrieves the certificate chain presented on a TLS port.
type CertFetcher interface {
	FetchCertificates(ctx context.Context, host string, port int) ([]*x509.Certificate, error)
}

// Discoverer returns the current set of servers in the infrastructure.
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// ResourceSampler reports CPU, memory and data-store volume utilization.
type ResourceSampler interface {
	Resources(ctx context.Context, host string) (ResourceUsage, error)
}

// Remote runs service, process, registry, file-system, event-log and
// performance-counter queries on a target.
type Remote interface {
	ResourceSampler

	Services(ctx context.Context, host string, names []string) ([]ServiceState, error)
	TimeStatus(ctx context.Context, host string) (TimeStatus, error)
	SysvolStatus(ctx context.Context, host string) (SysvolStatus, error)
	DatabaseStatus(ctx context.Context, host string) (DatabaseStatus, error)
	AuthActivity(ctx context.Context, host string, window time.Duration) (AuthActivity, error)
	Events(ctx context.Context, host string, logs []string, since time.Time) ([]Event, error)
}

// Directory answers directory-metadata queries.
type Directory interface {
	// ReplicationLinks returns the inbound replication links of host.
	ReplicationLinks(ctx context.Context, host string) ([]ReplicationLink, error)

	// RoleHolders maps each authoritative role to the server holding it.
	// A role missing from the map, or mapped to "", has no holder.
	RoleHolders(ctx context.Context) (map[string]string, error)

	// Trusts returns the trust relationships visible from host with their
	// verification outcome.
	Trusts(ctx context.Context, host string) ([]Trust, error)
}

// Set bundles the collaborators and run-wide probe settings threaded into
// every check. Nil collaborators are allowed; checks that need one report
// the signal as unavailable.
type Set struct {
	Resolver  Resolver
	Pinger    Pinger
	Ports     PortProber
	Certs     CertFetcher
	Remote    Remote
	Directory Directory
	Resources ResourceSampler

	// Domain is the directory domain name, used for SRV lookups and as the
	// infrastructure scope marker.
	Domain string

	// Timeout bounds each collaborator call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Context derives a context bounded by the probe timeout.
func (s Set) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.Timeout
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Sampler returns the resource sampler to use: Resources when set,
// otherwise Remote.
func (s Set) Sampler() ResourceSampler {
	if s.Resources != nil {
		return s.Resources
	}
	if s.Remote != nil {
		return s.Remote
	}
	return nil
}

// ErrUnavailable is returned when a check needs a collaborator the Set
// does not provide.
var ErrUnavailable = errors.New("collaborator not configured")
