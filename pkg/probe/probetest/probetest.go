// Package probetest provides function-backed fakes of the probe interfaces
// for tests. A nil function makes the corresponding call fail with
// probe.ErrUnavailable.
package probetest

import (
	"context"
	"crypto/x509"
	"time"

	"github.com/kylerisse/dirhealth/pkg/probe"
)

// Resolver is a fake probe.Resolver.
type Resolver struct {
	LookupHostFunc func(ctx context.Context, name string) ([]string, error)
	LookupAddrFunc func(ctx context.Context, addr string) ([]string, error)
	LookupSRVFunc  func(ctx context.Context, name string) ([]probe.SRV, error)
}

func (r *Resolver) LookupHost(ctx context.Context, name string) ([]string, error) {
	if r.LookupHostFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return r.LookupHostFunc(ctx, name)
}

func (r *Resolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	if r.LookupAddrFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return r.LookupAddrFunc(ctx, addr)
}

func (r *Resolver) LookupSRV(ctx context.Context, name string) ([]probe.SRV, error) {
	if r.LookupSRVFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return r.LookupSRVFunc(ctx, name)
}

// Pinger is a fake probe.Pinger.
type Pinger struct {
	PingFunc func(ctx context.Context, host string) (time.Duration, error)
}

func (p *Pinger) Ping(ctx context.Context, host string) (time.Duration, error) {
	if p.PingFunc == nil {
		return 0, probe.ErrUnavailable
	}
	return p.PingFunc(ctx, host)
}

// Ports is a fake probe.PortProber.
type Ports struct {
	ProbePortFunc func(ctx context.Context, host string, port int) (time.Duration, error)
}

func (p *Ports) ProbePort(ctx context.Context, host string, port int) (time.Duration, error) {
	if p.ProbePortFunc == nil {
		return 0, probe.ErrUnavailable
	}
	return p.ProbePortFunc(ctx, host, port)
}

// Certs is a fake probe.CertFetcher.
type Certs struct {
	FetchFunc func(ctx context.Context, host string, port int) ([]*x509.Certificate, error)
}

func (c *Certs) FetchCertificates(ctx context.Context, host string, port int) ([]*x509.Certificate, error) {
	if c.FetchFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return c.FetchFunc(ctx, host, port)
}

// Discoverer is a fake probe.Discoverer.
type Discoverer struct {
	Servers []string
	Err     error
	Calls   int
}

func (d *Discoverer) Discover(_ context.Context) ([]string, error) {
	d.Calls++
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Servers, nil
}

// Remote is a fake probe.Remote.
type Remote struct {
	ResourcesFunc      func(ctx context.Context, host string) (probe.ResourceUsage, error)
	ServicesFunc       func(ctx context.Context, host string, names []string) ([]probe.ServiceState, error)
	TimeStatusFunc     func(ctx context.Context, host string) (probe.TimeStatus, error)
	SysvolStatusFunc   func(ctx context.Context, host string) (probe.SysvolStatus, error)
	DatabaseStatusFunc func(ctx context.Context, host string) (probe.DatabaseStatus, error)
	AuthActivityFunc   func(ctx context.Context, host string, window time.Duration) (probe.AuthActivity, error)
	EventsFunc         func(ctx context.Context, host string, logs []string, since time.Time) ([]probe.Event, error)
}

func (r *Remote) Resources(ctx context.Context, host string) (probe.ResourceUsage, error) {
	if r.ResourcesFunc == nil {
		return probe.ResourceUsage{}, probe.ErrUnavailable
	}
	return r.ResourcesFunc(ctx, host)
}

func (r *Remote) Services(ctx context.Context, host string, names []string) ([]probe.ServiceState, error) {
	if r.ServicesFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return r.ServicesFunc(ctx, host, names)
}

func (r *Remote) TimeStatus(ctx context.Context, host string) (probe.TimeStatus, error) {
	if r.TimeStatusFunc == nil {
		return probe.TimeStatus{}, probe.ErrUnavailable
	}
	return r.TimeStatusFunc(ctx, host)
}

func (r *Remote) SysvolStatus(ctx context.Context, host string) (probe.SysvolStatus, error) {
	if r.SysvolStatusFunc == nil {
		return probe.SysvolStatus{}, probe.ErrUnavailable
	}
	return r.SysvolStatusFunc(ctx, host)
}

func (r *Remote) DatabaseStatus(ctx context.Context, host string) (probe.DatabaseStatus, error) {
	if r.DatabaseStatusFunc == nil {
		return probe.DatabaseStatus{}, probe.ErrUnavailable
	}
	return r.DatabaseStatusFunc(ctx, host)
}

func (r *Remote) AuthActivity(ctx context.Context, host string, window time.Duration) (probe.AuthActivity, error) {
	if r.AuthActivityFunc == nil {
		return probe.AuthActivity{}, probe.ErrUnavailable
	}
	return r.AuthActivityFunc(ctx, host, window)
}

func (r *Remote) Events(ctx context.Context, host string, logs []string, since time.Time) ([]probe.Event, error) {
	if r.EventsFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return r.EventsFunc(ctx, host, logs, since)
}

// Directory is a fake probe.Directory.
type Directory struct {
	ReplicationLinksFunc func(ctx context.Context, host string) ([]probe.ReplicationLink, error)
	RoleHoldersFunc      func(ctx context.Context) (map[string]string, error)
	TrustsFunc           func(ctx context.Context, host string) ([]probe.Trust, error)
}

func (d *Directory) ReplicationLinks(ctx context.Context, host string) ([]probe.ReplicationLink, error) {
	if d.ReplicationLinksFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return d.ReplicationLinksFunc(ctx, host)
}

func (d *Directory) RoleHolders(ctx context.Context) (map[string]string, error) {
	if d.RoleHoldersFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return d.RoleHoldersFunc(ctx)
}

func (d *Directory) Trusts(ctx context.Context, host string) ([]probe.Trust, error) {
	if d.TrustsFunc == nil {
		return nil, probe.ErrUnavailable
	}
	return d.TrustsFunc(ctx, host)
}
