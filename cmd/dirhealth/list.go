package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kylerisse/dirhealth/pkg/catalog"
	"github.com/kylerisse/dirhealth/pkg/check"
	"github.com/kylerisse/dirhealth/pkg/probe"
)

func newListCommand(g *globalOptions) *cobra.Command {
	var categories []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List check categories and the signals they classify",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			selected, err := categoriesOf(categories)
			if err != nil {
				return err
			}
			return listCategories(cmd.OutOrStdout(), catalog.New(), selected, cfg.Checks)
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Category to show (repeatable; default all)")
	return cmd
}

// listCategories prints each category's descriptor as configured, so that
// option-dependent signals such as the required services are shown.
func listCategories(out io.Writer, reg *check.Registry, categories []check.Category, overrides map[string]map[string]any) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, c := range categories {
		chk, err := reg.Create(c, probe.Set{}, overrides[string(c)])
		if err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
		desc := chk.Describe()
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s\t%s\t(%s)\n", c, desc.Label, desc.Scope)
		for _, s := range desc.Signals {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", s.Key, s.Label, s.Unit)
		}
	}
	return tw.Flush()
}

// categoriesOf parses names, or returns every category when none are given.
func categoriesOf(names []string) ([]check.Category, error) {
	if len(names) == 0 {
		return check.AllCategories, nil
	}
	out := make([]check.Category, 0, len(names))
	for _, n := range names {
		c, err := check.ParseCategory(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
