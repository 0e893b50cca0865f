// Package netprobe implements probe.PortProber with TCP connects and
// probe.CertFetcher with TLS handshakes.
package netprobe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// DefaultDialTimeout bounds a single connection attempt.
const DefaultDialTimeout = 5 * time.Second

// Prober connects to TCP ports and retrieves TLS certificates.
type Prober struct {
	dialer *net.Dialer
}

// Option is a functional option for configuring a Prober.
type Option func(*Prober) error

// WithDialTimeout sets the connection timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Prober) error {
		if d <= 0 {
			return errors.Errorf("dial timeout must be positive, got %v", d)
		}
		p.dialer.Timeout = d
		return nil
	}
}

// New creates a Prober.
func New(opts ...Option) (*Prober, error) {
	p := &Prober{dialer: &net.Dialer{Timeout: DefaultDialTimeout}}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, errors.Wrap(err, "netprobe")
		}
	}
	return p, nil
}

func address(host string, port int) (string, error) {
	if host == "" {
		return "", errors.New("host must not be empty")
	}
	if port <= 0 || port > 65535 {
		return "", errors.Errorf("invalid port %d", port)
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// ProbePort opens and closes a TCP connection to host:port, returning the
// time taken to connect.
func (p *Prober) ProbePort(ctx context.Context, host string, port int) (time.Duration, error) {
	addr, err := address(host, port)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, errors.Wrapf(err, "connect %s", addr)
	}
	elapsed := time.Since(start)
	_ = conn.Close()
	return elapsed, nil
}

// FetchCertificates completes a TLS handshake with host:port and returns the
// peer chain, leaf first. The chain is not verified: expiry and trust are
// judged by the caller.
func (p *Prober) FetchCertificates(ctx context.Context, host string, port int) ([]*x509.Certificate, error) {
	addr, err := address(host, port)
	if err != nil {
		return nil, err
	}
	d := &tls.Dialer{
		NetDialer: p.dialer,
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true,
		},
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "tls handshake %s", addr)
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, errors.Errorf("tls handshake %s: unexpected connection type %T", addr, conn)
	}
	chain := tlsConn.ConnectionState().PeerCertificates
	if len(chain) == 0 {
		return nil, errors.Errorf("tls handshake %s: no peer certificates", addr)
	}
	return chain, nil
}
