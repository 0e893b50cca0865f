package network

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe"
	"github.com/kylerisse/dirhealth/pkg/probe/probetest"
)

var testTarget = check.Target{Name: "dc1.corp.example.com"}

type fakes struct {
	resolveErr error
	pingErr    error
	rtt        time.Duration
	closed     map[int]bool
	probed     []int
}

func (f *fakes) set() probe.Set {
	return probe.Set{
		Resolver: &probetest.Resolver{
			LookupHostFunc: func(_ context.Context, _ string) ([]string, error) {
				if f.resolveErr != nil {
					return nil, f.resolveErr
				}
				return []string{"10.0.0.1"}, nil
			},
		},
		Pinger: &probetest.Pinger{
			PingFunc: func(_ context.Context, _ string) (time.Duration, error) {
				return f.rtt, f.pingErr
			},
		},
		Ports: &probetest.Ports{
			ProbePortFunc: func(_ context.Context, host string, port int) (time.Duration, error) {
				f.probed = append(f.probed, port)
				if f.closed[port] {
					return 0, errors.New("connection refused")
				}
				return time.Millisecond, nil
			},
		},
	}
}

func run(t *testing.T, f *fakes, opts ...Option) check.Result {
	t.Helper()
	c, err := New(f.set(), opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	results, err := c.Run(context.Background(), testTarget)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	return results[0]
}

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		f    *fakes
		opts []Option
		want check.Status
	}{
		{"all good", &fakes{rtt: 2 * time.Millisecond}, nil, check.StatusHealthy},
		{"icmp filtered", &fakes{pingErr: errors.New("timeout")}, nil, check.StatusWarning},
		{"slow", &fakes{rtt: 200 * time.Millisecond}, nil, check.StatusWarning},
		{"very slow", &fakes{rtt: 600 * time.Millisecond}, nil, check.StatusCritical},
		{"ldap closed", &fakes{closed: map[int]bool{389: true}}, nil, check.StatusCritical},
		{"gc closed", &fakes{closed: map[int]bool{3268: true}}, nil, check.StatusWarning},
		{"gc closed required", &fakes{closed: map[int]bool{3268: true}}, []Option{WithRequireGC(true)}, check.StatusCritical},
		{"winrm closed", &fakes{closed: map[int]bool{5985: true}}, nil, check.StatusWarning},
		{"ping disabled", &fakes{pingErr: errors.New("timeout")}, []Option{WithPing(false)}, check.StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := run(t, tt.f, tt.opts...)
			if r.Status != tt.want {
				t.Errorf("expected %q, got %q (%s)", tt.want, r.Status, r.Message)
			}
		})
	}
}

func TestRun_ResolutionIsLoadBearing(t *testing.T) {
	f := &fakes{resolveErr: errors.New("NXDOMAIN")}
	r := run(t, f)
	if r.Status != check.StatusCritical {
		t.Errorf("expected Critical, got %q", r.Status)
	}
	if !strings.Contains(r.Message, "Cannot resolve") {
		t.Errorf("unexpected message %q", r.Message)
	}
	if len(f.probed) != 0 {
		t.Errorf("expected no port probes, got %v", f.probed)
	}
	if _, ok := r.Data[check.DataError]; !ok {
		t.Error("expected data.error to be set")
	}
}

func TestRun_LiteralAddressSkipsResolver(t *testing.T) {
	c, _ := New(probe.Set{}, WithPing(false))
	results, err := c.Run(context.Background(), check.Target{Name: "dc1", Address: "10.0.0.9"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	r := results[0]
	if r.Status != check.StatusHealthy {
		t.Errorf("expected Healthy with only resolution, got %q", r.Status)
	}
	if !strings.Contains(r.Data[check.DataError].(string), "ports") {
		t.Errorf("expected ports recorded as unavailable, got %v", r.Data)
	}
}

func TestRun_NoResolver(t *testing.T) {
	c, _ := New(probe.Set{})
	results, _ := c.Run(context.Background(), testTarget)
	if results[0].Status != check.StatusUnknown {
		t.Errorf("expected Unknown, got %q", results[0].Status)
	}
}

func TestRun_ProbesEveryPort(t *testing.T) {
	f := &fakes{closed: map[int]bool{389: true}}
	r := run(t, f)
	if len(f.probed) != len(DefaultPorts) {
		t.Errorf("expected %d probes after a critical port, got %v", len(DefaultPorts), f.probed)
	}
	ports := r.Data["ports"].(map[string]bool)
	if ports["389"] || !ports["88"] {
		t.Errorf("unexpected port map %v", ports)
	}
}

func TestNew_InvalidPort(t *testing.T) {
	if _, err := New(probe.Set{}, WithPorts(Port{Number: 0})); err == nil {
		t.Error("expected error for port 0")
	}
}

func TestFactory(t *testing.T) {
	chk, err := Factory(probe.Set{}, map[string]any{"require_gc": true, "latency_warning": 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := chk.(*Check)
	for _, p := range c.ports {
		if p.Number == 3268 && !p.Required {
			t.Error("expected GC port to be required")
		}
	}
	if c.thresholds["latency"].Warning != 50 {
		t.Errorf("expected latency warning 50, got %v", c.thresholds["latency"].Warning)
	}
	if _, err := Factory(probe.Set{}, map[string]any{"ping": "yes"}); err == nil {
		t.Error("expected error for non-bool ping")
	}
}
