package security

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe"
	"github.com/kylerisse/dirhealth/pkg/probe/probetest"
)

func setWith(a probe.AuthActivity, aErr error, trusts []probe.Trust, tErr error) probe.Set {
	return probe.Set{
		Remote: &probetest.Remote{
			AuthActivityFunc: func(_ context.Context, _ string, _ time.Duration) (probe.AuthActivity, error) {
				return a, aErr
			},
		},
		Directory: &probetest.Directory{
			TrustsFunc: func(_ context.Context, _ string) ([]probe.Trust, error) {
				return trusts, tErr
			},
		},
	}
}

func run(t *testing.T, set probe.Set, opts ...Option) check.Result {
	t.Helper()
	c, err := New(set, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := c.Run(context.Background(), check.Target{Name: "dc1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return results[0]
}

func TestRun(t *testing.T) {
	verified := []probe.Trust{{Name: "partner.example.org", Verified: true}}
	tests := []struct {
		name   string
		auth   probe.AuthActivity
		trusts []probe.Trust
		want   check.Status
	}{
		{"quiet", probe.AuthActivity{Lockouts: 2, FailedLogons: 10, NTLM: 10, Kerberos: 90}, verified, check.StatusHealthy},
		{"lockouts below limit", probe.AuthActivity{Lockouts: 9}, verified, check.StatusHealthy},
		{"lockouts at limit", probe.AuthActivity{Lockouts: 10}, verified, check.StatusCritical},
		{"failed logons at limit", probe.AuthActivity{FailedLogons: 50}, verified, check.StatusCritical},
		{"ntlm majority", probe.AuthActivity{NTLM: 60, Kerberos: 40}, verified, check.StatusWarning},
		{"ntlm half", probe.AuthActivity{NTLM: 50, Kerberos: 50}, verified, check.StatusHealthy},
		{"trust broken", probe.AuthActivity{}, []probe.Trust{{Name: "old.example.net", Error: "secure channel broken"}}, check.StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, setWith(tt.auth, nil, tt.trusts, nil))
			if r.Status != tt.want {
				t.Errorf("expected %q, got %q (%s)", tt.want, r.Status, r.Message)
			}
		})
	}
}

func TestRun_TrustErrorInMessage(t *testing.T) {
	r := run(t, setWith(probe.AuthActivity{}, nil, []probe.Trust{{Name: "old.example.net", Error: "secure channel broken"}}, nil))
	if r.Message != "Trust with old.example.net failed verification: secure channel broken" {
		t.Errorf("unexpected message %q", r.Message)
	}
}

func TestRun_PartialSources(t *testing.T) {
	r := run(t, setWith(probe.AuthActivity{Lockouts: 12}, nil, nil, errors.New("LDAP timeout")))
	if r.Status != check.StatusCritical {
		t.Errorf("expected Critical from auth activity alone, got %q", r.Status)
	}
	if _, ok := r.Data[check.DataError]; !ok {
		t.Error("expected trusts recorded as unavailable")
	}
}

func TestRun_NoTrustsIsFine(t *testing.T) {
	r := run(t, setWith(probe.AuthActivity{}, nil, nil, probe.ErrNoData))
	if r.Status != check.StatusHealthy {
		t.Errorf("expected Healthy, got %q", r.Status)
	}
	if _, ok := r.Data[check.DataError]; ok {
		t.Errorf("no trusts must not be an error, got %v", r.Data[check.DataError])
	}
}

func TestRun_AllSourcesFail(t *testing.T) {
	r := run(t, setWith(probe.AuthActivity{}, errors.New("denied"), nil, errors.New("denied")))
	if r.Status != check.StatusUnknown {
		t.Errorf("expected Unknown, got %q", r.Status)
	}
}

func TestRun_CustomLimits(t *testing.T) {
	r := run(t, setWith(probe.AuthActivity{Lockouts: 3}, nil, nil, nil), WithLockoutLimit(3))
	if r.Status != check.StatusCritical {
		t.Errorf("expected Critical at custom limit, got %q", r.Status)
	}
}

func TestFactory(t *testing.T) {
	chk, err := Factory(probe.Set{}, map[string]any{"window": "1h", "lockouts_critical": 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := chk.(*Check)
	if c.window != time.Hour {
		t.Errorf("expected 1h window, got %v", c.window)
	}
	if th := c.thresholds["lockouts"]; th.Critical != 5 || !th.Inclusive {
		t.Errorf("unexpected lockout threshold %+v", th)
	}
	if _, err := Factory(probe.Set{}, map[string]any{"window": "-1h"}); err == nil {
		t.Error("expected error for negative window")
	}
}
