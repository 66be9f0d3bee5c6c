package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"healthetl/internal/config"
	"healthetl/internal/datasource/file"
	"healthetl/internal/ingest"
	"healthetl/internal/pipeline"
	"healthetl/internal/probe"
	"healthetl/internal/report"
	"healthetl/internal/runlock"
	"healthetl/internal/scheduler"
	"healthetl/internal/storage"
)

// DefaultRunsLimit is the number of quality runs listed by default.
const DefaultRunsLimit = 20

func newIngestCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:       "ingest [fitness|nutrition|all]",
		Short:     "Run ingestion pipelines (default all: nutrition, then fitness)",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"fitness", "nutrition", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "all"
			if len(args) == 1 {
				which = args[0]
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				steps, err := a.steps(which)
				if err != nil {
					return err
				}
				o := &pipeline.Orchestrator{Steps: steps, Log: c.log}
				rep, err := o.Run(ctx)
				if perr := report.Results(cmd.OutOrStdout(), rep.Results, c.format); perr != nil {
					return errors.Join(err, perr)
				}
				return err
			})
		},
	}
}

func newPipelineCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "pipeline",
		Short: "Ingest all datasets, then export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				return runPipeline(ctx, cmd, c, a)
			})
		},
	}
}

func runPipeline(ctx context.Context, cmd *cobra.Command, c *cli, a *app) error {
	steps, err := a.steps("all")
	if err != nil {
		return err
	}
	o := &pipeline.Orchestrator{Steps: steps, Export: a.exporter(), Log: c.log}
	rep, err := o.Run(ctx)
	if perr := report.Results(cmd.OutOrStdout(), rep.Results, c.format); perr != nil {
		return errors.Join(err, perr)
	}
	return err
}

func newExportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write cleaned and KPI tables as CSV, JSON and optionally XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				sum, err := a.exporter().Run(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, f := range sum.Files {
					fmt.Fprintf(out, "%s\t%d rows\t%s\t%s\n", f.Name, f.Rows, f.CSV, f.JSON)
				}
				if sum.Workbook != "" {
					fmt.Fprintf(out, "workbook\t%s\n", sum.Workbook)
				}
				return nil
			})
		},
	}
}

func newRunsCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List quality runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return c.fail(cmd, fmt.Errorf("--limit must be positive, got %d", limit))
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				runs, err := a.store.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				return report.Runs(cmd.OutOrStdout(), runs, c.format)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", DefaultRunsLimit, "maximum number of runs")
	return cmd
}

func newScheduleCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on schedule.cron until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Schedule.Cron == "" {
				return c.fail(cmd, errors.New("schedule.cron is empty"))
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				locker, err := a.locker(ctx)
				if err != nil {
					return err
				}
				s := scheduler.New(a.loc, c.log)
				_, err = s.Add(ctx, c.cfg.Schedule.Cron, "pipeline", func(ctx context.Context) error {
					key := ingest.LockKey("pipeline", a.deps().Date())
					err := runlock.With(ctx, locker, key, func(ctx context.Context) error {
						return runPipeline(ctx, cmd, c, a)
					})
					if errors.Is(err, runlock.ErrLockNotAcquired) {
						c.log.Info("scheduled run skipped, another host holds the lock", zap.String("key", key))
						return nil
					}
					return err
				})
				if err != nil {
					return err
				}
				return s.Run(ctx)
			})
		},
	}
}

func newProbeCmd(c *cli) *cobra.Command {
	var sample int
	cmd := &cobra.Command{
		Use:       "probe fitness|nutrition",
		Short:     "Profile a source CSV and check its header before ingesting",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"fitness", "nutrition"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, required := c.cfg.Sources.FitnessCSV, ingest.FitnessColumns
			if args[0] == "nutrition" {
				path, required = c.cfg.Sources.NutritionCSV, ingest.NutritionColumns
			}
			rep, err := probe.Probe(cmd.Context(), file.NewLocal(path), required, probe.Options{SampleRows: sample})
			if err != nil {
				return c.fail(cmd, err)
			}
			if err := report.Probe(cmd.OutOrStdout(), rep, c.format); err != nil {
				return c.fail(cmd, err)
			}
			if !rep.OK() {
				return c.fail(cmd, &ingest.SchemaError{Dataset: args[0], Missing: rep.Missing})
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&sample, "sample", probe.DefaultSampleRows, "rows profiled for type inference")
	return cmd
}

func newInitDBCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Apply the embedded schema to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := storage.EnsureSchema(ctx, a.store); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema ready on %s\n", a.store.Kind())
				return nil
			})
		},
	}
}

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues := config.Validate(c.cfg)
			out := cmd.OutOrStdout()
			for _, iss := range issues {
				fmt.Fprintf(out, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if err := config.Err(issues); err != nil {
				return c.fail(cmd, errors.New("configuration is invalid"))
			}
			fmt.Fprintln(out, "configuration is valid")
			return nil
		},
	})
	return cmd
}
