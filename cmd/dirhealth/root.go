package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kylerisse/dirhealth/pkg/config"
	"github.com/kylerisse/dirhealth/pkg/logging"
)

// exitError ends the process with a status code without printing an error.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type globalOptions struct {
	configFiles []string
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:           "dirhealth",
		Short:         "Directory service health checks",
		Long:          "dirhealth evaluates the health of directory servers across replication, roles, DNS, SYSVOL, time, resources, security, database, events and certificates.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVarP(&g.configFiles, "config", "c", nil, "Configuration file (repeatable; later files override earlier ones)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (overrides logging.level)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format text|json (overrides logging.format)")

	root.AddCommand(newRunCommand(g))
	root.AddCommand(newListCommand(g))
	root.AddCommand(newConfigCommand(g))
	return root
}

// load reads the configuration and applies the global flag overrides.
func (g *globalOptions) load() (*config.Settings, error) {
	cfg, err := config.Load(g.configFiles...)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Settings) (*logrus.Logger, error) {
	return logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
}
