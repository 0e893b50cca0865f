// Package orchestrator runs a selection of check categories across a set of
// target servers and aggregates the Results into a Report.
//
// The target set is discovered once, before any evaluation, when the caller
// supplies none. Every Check is built before the first evaluation so that
// invalid configuration is rejected up front. Infrastructure-scoped
// categories run exactly once; per-target categories run target by target in
// category order, with targets evaluated in parallel up to a bound.
//
// A Check that returns an error or panics only loses its own (target,
// category) pair, which is logged and recorded in Report.Skipped. Only
// configuration and discovery failures are returned to the caller.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

const (
	// DefaultParallelism is the number of targets evaluated concurrently.
	DefaultParallelism = 4

	// DefaultCheckTimeout bounds a single (target, category) evaluation.
	DefaultCheckTimeout = 2 * time.Minute
)

var (
	// ErrConfiguration wraps failures building a Check from its options.
	ErrConfiguration = errors.New("invalid check configuration")

	// ErrDiscovery wraps failures of target discovery.
	ErrDiscovery = errors.New("target discovery failed")

	// ErrNoTargets is returned when neither the caller nor discovery
	// provides any target.
	ErrNoTargets = errors.New("no targets to evaluate")
)

// Options select what a single run evaluates.
type Options struct {
	// Targets are the servers to evaluate. When empty they are discovered.
	Targets []string

	// Categories selects the categories to run. When empty every
	// registered category runs.
	Categories []check.Category

	// IncludeHealthy keeps Healthy Results in Report.Results. Summary
	// counts always cover every Result.
	IncludeHealthy bool

	// Overrides are per-category option maps passed to each Factory.
	Overrides map[check.Category]map[string]any
}

// Runner executes runs. A Runner holds no per-run state and may be reused.
type Runner struct {
	registry     *check.Registry
	deps         probe.Set
	discoverer   probe.Discoverer
	logger       *logrus.Logger
	parallelism  int
	checkTimeout time.Duration
	rateLimit    rate.Limit
	burst        int
	metrics      *Metrics
	now          func() time.Time
}

// RunnerOption is a functional option for configuring a Runner.
type RunnerOption func(*Runner)

// WithDiscoverer sets the collaborator used when no targets are supplied.
func WithDiscoverer(d probe.Discoverer) RunnerOption {
	return func(r *Runner) {
		r.discoverer = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithParallelism bounds how many targets are evaluated at once. Values
// below one mean one.
func WithParallelism(n int) RunnerOption {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.parallelism = n
	}
}

// WithCheckTimeout bounds each (target, category) evaluation. Zero or
// negative disables the bound; collaborator calls stay bounded by the probe
// timeout.
func WithCheckTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.checkTimeout = d
	}
}

// WithRateLimit limits how many evaluations start per second. A limit of
// zero or less is unlimited.
func WithRateLimit(perSecond float64, burst int) RunnerOption {
	return func(r *Runner) {
		if perSecond <= 0 {
			r.rateLimit = rate.Inf
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.rateLimit = rate.Limit(perSecond)
		r.burst = burst
	}
}

// WithMetrics records every finished run in m.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New creates a Runner over the categories in reg. deps is threaded into
// every Check.
func New(reg *check.Registry, deps probe.Set, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:     reg,
		deps:         deps,
		logger:       logrus.StandardLogger(),
		parallelism:  DefaultParallelism,
		checkTimeout: DefaultCheckTimeout,
		rateLimit:    rate.Inf,
		burst:        1,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// plan is the fully-built work of one run.
type plan struct {
	targets        []check.Target
	categories     []check.Category
	infrastructure []check.Check
	perTarget      []check.Check
}

// Run evaluates the selected categories against the targets. Cancelling ctx
// stops new evaluations; the Results produced so far are returned in a
// Report with Partial set and a nil error.
func (r *Runner) Run(ctx context.Context, o Options) (*Report, error) {
	started := r.now()
	runID := uuid.New()
	log := r.logger.WithField("run", runID.String())

	p, err := r.build(o)
	if err != nil {
		return nil, err
	}
	// Infrastructure-only runs need no targets.
	if len(p.perTarget) > 0 || len(o.Targets) > 0 {
		p.targets, err = r.targets(ctx, o.Targets)
		if err != nil {
			return nil, err
		}
	}

	log.Infof("Starting run over %d target(s) with categories %s", len(p.targets), joinCategories(p.categories))

	// Slot 0 holds infrastructure results; slot i+1 holds target i.
	collector := check.NewCollector(len(p.targets) + 1)
	skipped := newSkipLedger(p.categories)
	limiter := rate.NewLimiter(r.rateLimit, r.burst)

	infra := check.InfrastructureTarget(r.deps.Domain)
	w := &worker{runner: r, limiter: limiter, collector: collector, skipped: skipped, log: log}
	w.run(ctx, 0, infra, p.infrastructure)

	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for i, target := range p.targets {
		if ctx.Err() != nil {
			break
		}
		i, target := i, target
		g.Go(func() error {
			w.run(ctx, i+1, target, p.perTarget)
			return nil
		})
	}
	_ = g.Wait()

	all := collector.Results()
	rep := newReport(runID.String(), started, r.now().Sub(started), p, all, skipped.entries(), o.IncludeHealthy)
	rep.Partial = ctx.Err() != nil

	if rep.Partial {
		log.Warnf("Run cancelled after %v: %v", rep.Elapsed, ctx.Err())
	}
	log.Infof("Run finished in %v: %d critical, %d warning, %d healthy, %d unknown, %d skipped",
		rep.Elapsed, rep.Summary.Critical, rep.Summary.Warning, rep.Summary.Healthy, rep.Summary.Unknown, len(rep.Skipped))

	if r.metrics != nil {
		r.metrics.record(rep, all)
	}
	return rep, nil
}

// build creates every selected Check. Any factory error fails the run.
func (r *Runner) build(o Options) (*plan, error) {
	registered := r.registry.Categories()
	categories := slices.Clone(o.Categories)
	if len(categories) == 0 {
		categories = registered
	}
	// Selected categories always run in registration order.
	slices.SortStableFunc(categories, func(a, b check.Category) int {
		return rank(registered, a) - rank(registered, b)
	})

	p := &plan{}
	seen := make(map[check.Category]bool, len(categories))
	for _, c := range categories {
		if seen[c] {
			continue
		}
		seen[c] = true

		chk, err := r.registry.Create(c, r.deps, o.Overrides[c])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfiguration, c, err)
		}
		p.categories = append(p.categories, c)
		if chk.Describe().Scope == check.ScopeInfrastructure {
			p.infrastructure = append(p.infrastructure, chk)
		} else {
			p.perTarget = append(p.perTarget, chk)
		}
	}
	if len(p.categories) == 0 {
		return nil, fmt.Errorf("%w: no categories selected", ErrConfiguration)
	}
	return p, nil
}

// targets returns the supplied targets, or discovers them once. Names are
// de-duplicated case-insensitively, keeping the first spelling.
func (r *Runner) targets(ctx context.Context, supplied []string) ([]check.Target, error) {
	names := supplied
	if len(names) == 0 {
		if r.discoverer == nil {
			return nil, ErrNoTargets
		}
		dctx, cancel := r.deps.Context(ctx)
		discovered, err := r.discoverer.Discover(dctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
		}
		r.logger.Infof("Discovered %d server(s)", len(discovered))
		names = discovered
	}

	seen := make(map[string]bool, len(names))
	var out []check.Target
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, check.Target{Name: n})
	}
	if len(out) == 0 {
		return nil, ErrNoTargets
	}
	return out, nil
}

// rank returns the position of c in order; unregistered categories sort
// last.
func rank(order []check.Category, c check.Category) int {
	if i := slices.Index(order, c); i >= 0 {
		return i
	}
	return len(order)
}

func joinCategories(cs []check.Category) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
