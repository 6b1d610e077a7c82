package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roby-engine/roby/internal/ports"
	"github.com/roby-engine/roby/internal/roconfig"
	"github.com/roby-engine/roby/internal/roengine"
	"github.com/roby-engine/roby/internal/rologging"
)

type runOptions struct {
	PlanPath string
	Cycles   int
	Period   time.Duration
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a plan definition and drive the engine for a bounded number of cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if root.verbose {
				level = "debug"
			}
			logger, err := rologging.New(rologging.Options{
				Writer:    cmd.OutOrStdout(),
				Level:     level,
				Component: "roby",
			})
			if err != nil {
				return err
			}
			return runEngine(cmd.Context(), logger, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.PlanPath, "plan", "p", "", "Path to a plan definition YAML file")
	cmd.MarkFlagRequired("plan") //nolint:errcheck
	cmd.Flags().IntVarP(&opts.Cycles, "cycles", "n", 10, "Number of cycles to run before quitting")
	cmd.Flags().DurationVar(&opts.Period, "period", 100*time.Millisecond, "Sleep between cycles")

	return cmd
}

func runEngine(ctx context.Context, logger *rologging.Logger, opts runOptions) error {
	def, err := roconfig.ParsePlanDefinition(opts.PlanPath)
	if err != nil {
		return err
	}
	plan, err := roconfig.LoadPlan(def)
	if err != nil {
		return err
	}

	deadZone := time.Duration(def.Settings.DeadZoneMS) * time.Millisecond
	engine := roengine.New(plan, roengine.Options{
		Logger:   logger,
		DeadZone: deadZone,
	})

	period := opts.Period
	if def.Settings.CyclePeriodMS > 0 {
		period = time.Duration(def.Settings.CyclePeriodMS) * time.Millisecond
	}

	for i := 0; i < opts.Cycles; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := engine.RunCycle(ctx); err != nil {
			return err
		}
		if engine.Done() {
			break
		}
		ports.RealClock{}.Sleep(period)
	}

	engine.Quit(ctx)
	if err := engine.JoinAllWaitingWork(ctx); err != nil {
		return err
	}

	for _, fe := range engine.FrameworkErrors() {
		logger.Error(ctx, "unhandled framework error", "cycle", fe.Cycle, "error", fe.Err)
	}
	if n := len(engine.FrameworkErrors()); n > 0 {
		return fmt.Errorf("engine reported %d framework error(s)", n)
	}
	return nil
}
