// Package local implements probe.ResourceSampler for the machine the
// engine runs on, using gopsutil. Requests for any other host are passed to
// a fallback sampler.
package local

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/kylerisse/dirhealth/pkg/probe"
)

// DefaultCPUInterval is how long CPU utilization is measured over.
const DefaultCPUInterval = time.Second

// Sampler samples local utilization.
type Sampler struct {
	dataPath string
	interval time.Duration
	names    map[string]bool
	fallback probe.ResourceSampler

	cpuPercent  func(ctx context.Context, interval time.Duration) (float64, error)
	memPercent  func(ctx context.Context) (float64, error)
	diskPercent func(ctx context.Context, path string) (float64, error)
}

// Option is a functional option for configuring a Sampler.
type Option func(*Sampler) error

// WithDataPath sets the path whose volume is reported as the data-store
// volume.
func WithDataPath(path string) Option {
	return func(s *Sampler) error {
		if path == "" {
			return errors.New("data path must not be empty")
		}
		s.dataPath = path
		return nil
	}
}

// WithCPUInterval sets the CPU measurement interval.
func WithCPUInterval(d time.Duration) Option {
	return func(s *Sampler) error {
		if d <= 0 {
			return errors.Errorf("cpu interval must be positive, got %v", d)
		}
		s.interval = d
		return nil
	}
}

// WithFallback sets the sampler used for hosts other than this one.
func WithFallback(fallback probe.ResourceSampler) Option {
	return func(s *Sampler) error {
		s.fallback = fallback
		return nil
	}
}

// WithNames adds names that identify this machine.
func WithNames(names ...string) Option {
	return func(s *Sampler) error {
		for _, n := range names {
			s.addName(n)
		}
		return nil
	}
}

// New creates a Sampler. The local host name, localhost and the loopback
// addresses are always recognized as local.
func New(opts ...Option) (*Sampler, error) {
	s := &Sampler{
		dataPath:    defaultDataPath(),
		interval:    DefaultCPUInterval,
		names:       map[string]bool{},
		cpuPercent:  cpuPercent,
		memPercent:  memPercent,
		diskPercent: diskPercent,
	}
	for _, n := range []string{"localhost", "127.0.0.1", "::1"} {
		s.addName(n)
	}
	if host, err := os.Hostname(); err == nil {
		s.addName(host)
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.Wrap(err, "local")
		}
	}
	return s, nil
}

func defaultDataPath() string {
	if d := os.Getenv("SystemDrive"); d != "" {
		return d + `\`
	}
	return "/"
}

func (s *Sampler) addName(name string) {
	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if name == "" {
		return
	}
	s.names[name] = true
	if short, _, ok := strings.Cut(name, "."); ok && short != "" {
		s.names[short] = true
	}
}

// IsLocal reports whether host names this machine. A fully qualified name
// matches on its first label.
func (s *Sampler) IsLocal(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(host), "."))
	if s.names[host] {
		return true
	}
	short, _, _ := strings.Cut(host, ".")
	return short != "" && s.names[short]
}

// Resources samples this machine when host is local, otherwise defers to
// the fallback sampler. A measurement that fails is marked unavailable; an
// error is returned only when nothing could be sampled.
func (s *Sampler) Resources(ctx context.Context, host string) (probe.ResourceUsage, error) {
	if !s.IsLocal(host) {
		if s.fallback == nil {
			return probe.ResourceUsage{}, errors.Wrapf(probe.ErrUnavailable, "resources of %s", host)
		}
		return s.fallback.Resources(ctx, host)
	}

	u := probe.ResourceUsage{DataVolume: s.dataPath}
	var err error
	if u.CPUPercent, err = s.cpuPercent(ctx, s.interval); err != nil {
		u.MarkUnavailable(probe.MeasureCPU, errors.Wrap(err, "sample cpu"))
	}
	if u.MemoryPercent, err = s.memPercent(ctx); err != nil {
		u.MarkUnavailable(probe.MeasureMemory, errors.Wrap(err, "sample memory"))
	}
	if used, err := s.diskPercent(ctx, s.dataPath); err != nil {
		u.MarkUnavailable(probe.MeasureDiskFree, errors.Wrapf(err, "sample disk %s", s.dataPath))
	} else {
		u.DiskFreePercent = 100 - used
	}
	if ctx.Err() != nil {
		return probe.ResourceUsage{}, ctx.Err()
	}
	if len(u.Unavailable) == 3 {
		return probe.ResourceUsage{}, errors.Errorf("%s; %s; %s",
			u.Unavailable[probe.MeasureCPU], u.Unavailable[probe.MeasureMemory], u.Unavailable[probe.MeasureDiskFree])
	}
	return u, nil
}

func cpuPercent(ctx context.Context, interval time.Duration) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, errors.New("no cpu sample")
	}
	return pcts[0], nil
}

func memPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func diskPercent(ctx context.Context, path string) (float64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return u.UsedPercent, nil
}
