package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kylerisse/dirhealth/pkg/catalog"
	"github.com/kylerisse/dirhealth/pkg/config"
	"github.com/kylerisse/dirhealth/pkg/orchestrator"
	"github.com/kylerisse/dirhealth/pkg/report"
)

type runOptions struct {
	targets        []string
	categories     []string
	domain         string
	includeHealthy bool
	parallelism    int
	output         string
	metricsFile    string
	failOn         string
}

func newRunCommand(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the configured targets and print a report",
		Long: `Evaluate the selected categories against every target.

Targets come from --target, then the configuration, then SRV discovery in
the configured domain. Interrupting the run prints the partial report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			o.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := validateFailOn(o.failOn); err != nil {
				return err
			}
			return runReport(cmd, cfg, o)
		},
	}
	cmd.Flags().StringSliceVarP(&o.targets, "target", "t", nil, "Target server (repeatable; disables discovery)")
	cmd.Flags().StringSliceVar(&o.categories, "category", nil, "Category to run (repeatable; default all)")
	cmd.Flags().StringVar(&o.domain, "domain", "", "Directory domain (overrides domain)")
	cmd.Flags().BoolVar(&o.includeHealthy, "include-healthy", false, "Include healthy results in the report")
	cmd.Flags().IntVar(&o.parallelism, "parallelism", 0, "Targets evaluated concurrently (overrides run.parallelism)")
	cmd.Flags().StringVarP(&o.output, "output", "o", report.FormatText, "Output format: "+strings.Join(report.Formats, "|"))
	cmd.Flags().StringVar(&o.metricsFile, "metrics-textfile", "", "Write run metrics to this file (overrides metrics.textfile)")
	cmd.Flags().StringVar(&o.failOn, "fail-on", "", "Exit with status 2 when any result is at least this severe: warning|critical")
	return cmd
}

// apply overrides configuration values with the flags that were set.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Targets = o.targets
	}
	if flags.Changed("category") {
		cfg.Run.Categories = o.categories
	}
	if flags.Changed("domain") {
		cfg.Domain = strings.TrimSuffix(o.domain, ".")
	}
	if flags.Changed("include-healthy") {
		cfg.Run.IncludeHealthy = o.includeHealthy
	}
	if flags.Changed("parallelism") {
		cfg.Run.Parallelism = o.parallelism
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = o.metricsFile
	}
}

func runReport(cmd *cobra.Command, cfg *config.Settings, o *runOptions) error {
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	probes, err := cfg.BuildProbes(logger)
	if err != nil {
		return err
	}
	runOpts, err := cfg.RunOptions()
	if err != nil {
		return err
	}

	var metrics *orchestrator.Metrics
	if cfg.Metrics.Textfile != "" {
		metrics = orchestrator.NewMetrics()
	}
	runner := orchestrator.New(catalog.New(), probes.Set, cfg.RunnerOptions(logger, probes, metrics)...)

	rep, err := runner.Run(cmd.Context(), runOpts)
	if err != nil {
		return err
	}
	if err := report.Write(cmd.OutOrStdout(), o.output, rep); err != nil {
		return err
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		logger.Debugf("Wrote metrics to %s", cfg.Metrics.Textfile)
	}

	if failed(rep, o.failOn) {
		return &exitError{code: 2}
	}
	return nil
}

func validateFailOn(s string) error {
	switch s {
	case "", "warning", "critical":
		return nil
	default:
		return fmt.Errorf("--fail-on must be warning or critical, got %q", s)
	}
}

// failed reports whether rep holds a result at least as severe as failOn.
func failed(rep *orchestrator.Report, failOn string) bool {
	switch failOn {
	case "critical":
		return rep.Summary.Critical > 0
	case "warning":
		return rep.Summary.Critical > 0 || rep.Summary.Warning > 0
	default:
		return false
	}
}
