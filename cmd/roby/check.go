package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roby-engine/roby/internal/roconfig"
)

type checkOptions struct {
	PlanPath string
}

func newCheckCmd() *cobra.Command {
	opts := checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Parse and validate a plan definition without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := roconfig.ParsePlanDefinition(opts.PlanPath)
			if err != nil {
				return err
			}
			if _, err := roconfig.LoadPlan(def); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d task(s), %d relation(s) — ok\n", def.Name, len(def.Tasks), len(def.Relations))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.PlanPath, "plan", "p", "", "Path to a plan definition YAML file")
	cmd.MarkFlagRequired("plan") //nolint:errcheck

	return cmd
}
