// Package certificates implements the LDAPS certificate check. The leaf
// certificate presented on each TLS port is judged on its remaining validity;
// a self-signed certificate is a Warning.
package certificates

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"math"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/evaluate"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = check.CategoryCertificates

	// CheckName identifies the Result within the category.
	CheckName = "CertificateExpiry"

	// PortLDAPS is the LDAP over TLS port.
	PortLDAPS = 636

	// PortGCS is the global catalog over TLS port.
	PortGCS = 3269
)

// Desc describes the category.
var Desc = check.Descriptor{
	Label: "certificates",
	Scope: check.ScopeTarget,
	Signals: []check.SignalDef{
		{Key: "daysToExpiry", Label: "days until the certificate expires", Unit: "days"},
		{Key: "trusted", Label: "certificate is not self-signed", Unit: evaluate.UnitBool},
	},
}

// DefaultThresholds returns the expiry bounds in days. Both are inclusive.
func DefaultThresholds() evaluate.Table {
	return evaluate.Table{
		"daysToExpiry": evaluate.Below(30, 7).Inclusively(),
	}
}

var closing = evaluate.Closing{
	Message:         "Certificates are valid",
	Recommendations: []string{"Continue monitoring certificate expiry"},
}

// Check implements check.Check using TLS certificate retrieval.
type Check struct {
	deps       probe.Set
	thresholds evaluate.Table
	checkGC    bool
	now        func() time.Time
}

// Option is a functional option for configuring a certificates Check.
type Option func(*Check) error

// WithGlobalCatalog also checks the global catalog TLS port.
func WithGlobalCatalog(enabled bool) Option {
	return func(c *Check) error {
		c.checkGC = enabled
		return nil
	}
}

// WithClock sets the time source used to compute days to expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Check) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// New creates a certificates Check.
func New(deps probe.Set, opts ...Option) (*Check, error) {
	c := &Check{
		deps:       deps,
		thresholds: DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("certificates: %w", err)
		}
	}
	if err := c.thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("certificates: %w", err)
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

func (c *Check) ports() []int {
	if c.checkGC {
		return []int{PortLDAPS, PortGCS}
	}
	return []int{PortLDAPS}
}

// Run fetches and evaluates the certificate on each TLS port of target. When
// no port presents a certificate the result is Unknown.
func (c *Check) Run(ctx context.Context, target check.Target) ([]check.Result, error) {
	if c.deps.Certs == nil {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, probe.ErrUnavailable)}, nil
	}

	var (
		signals []evaluate.Signal
		errs    check.SignalErrors
	)
	now := c.now()
	th := c.thresholds["daysToExpiry"]
	certs := map[string]any{}

	for _, port := range c.ports() {
		pctx, cancel := c.deps.Context(ctx)
		chain, err := c.deps.Certs.FetchCertificates(pctx, target.Host(), port)
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil && len(chain) == 0 {
			err = probe.ErrNoData
		}
		if err != nil {
			errs.Add(fmt.Sprintf("port %d", port), err)
			continue
		}

		leaf := chain[0]
		days := daysUntil(now, leaf.NotAfter)
		self := selfSigned(leaf)
		certs[fmt.Sprintf("%d", port)] = map[string]any{
			"subject":      leaf.Subject.String(),
			"issuer":       leaf.Issuer.String(),
			"notAfter":     leaf.NotAfter,
			"daysToExpiry": days,
			"selfSigned":   self,
		}

		expiry := evaluate.Numeric(fmt.Sprintf("port %d daysToExpiry", port), float64(days), "days", th).
			Warn("Certificate on port %d of %s expires in %d days (warning threshold: %v days)", port, target.Name, days, th.Warning).
			Crit("%s", expiryCritical(port, target.Name, days, th.Critical)).
			Fix(fmt.Sprintf("Renew the certificate used on port %d of %s", port, target.Name))
		signals = append(signals, expiry,
			evaluate.WarnProbe(fmt.Sprintf("port %d trusted", port), !self,
				fmt.Sprintf("Certificate on port %d of %s is self-signed", port, target.Name),
				"Replace the self-signed certificate with one issued by the enterprise CA"))
	}

	if len(signals) == 0 {
		return []check.Result{check.UnknownResult(TypeName, CheckName, target, errs.Err())}, nil
	}

	data := map[string]any{"certificates": certs}
	errs.Record(data)
	out, err := evaluate.Evaluate(signals, closing)
	if err != nil {
		return nil, err
	}
	return []check.Result{out.Result(TypeName, CheckName, target, data)}, nil
}

func expiryCritical(port int, name string, days int, bound float64) string {
	if days < 0 {
		return fmt.Sprintf("Certificate on port %d of %s expired %d days ago", port, name, -days)
	}
	return fmt.Sprintf("Certificate on port %d of %s expires in %d days (critical threshold: %v days)", port, name, days, bound)
}

// daysUntil returns whole days from now until t, rounding toward the past so
// that a certificate expired by any amount is at most -1.
func daysUntil(now, t time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}

func selfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

// Factory creates a certificates Check from a config map.
// Optional keys:
//   - "check_gc" (bool): also check port 3269
//   - "daysToExpiry_warning", "daysToExpiry_critical" (number): days
func Factory(deps probe.Set, config map[string]any) (check.Check, error) {
	var opts []Option
	if v, ok, err := check.ConfigBool(config, "check_gc"); err != nil {
		return nil, fmt.Errorf("certificates: %w", err)
	} else if ok {
		opts = append(opts, WithGlobalCatalog(v))
	}
	c, err := New(deps, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.thresholds.Apply(config); err != nil {
		return nil, fmt.Errorf("certificates: %w", err)
	}
	return c, nil
}
