// Command healthetl ingests the fitness and nutrition CSV datasets into a
// relational store, records a quality run per pipeline and exports the
// cleaned tables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"healthetl/internal/config"
	"healthetl/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// cli is the state shared by every subcommand.
type cli struct {
	cfgFile string
	envFile string
	format  string

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "healthetl",
		Short:         "Ingest fitness and nutrition datasets with per-run quality tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "YAML config file")
	pf.StringVar(&c.envFile, "env-file", config.DefaultDotEnv, "dotenv file loaded before the environment")
	pf.StringVar(&c.format, "format", "table", "output format: table, markdown, csv or json")
	pf.String("storage-kind", "", "storage backend: sqlite, postgres, mssql or mysql")
	pf.String("dsn", "", "storage DSN")
	pf.Bool("bootstrap", true, "apply the embedded schema before running")
	pf.String("fitness-csv", "", "fitness CSV path")
	pf.String("nutrition-csv", "", "nutrition CSV path")
	pf.String("export-dir", "", "export directory")
	pf.Bool("xlsx", false, "also write an XLSX workbook on export")
	pf.String("run-date", "", "run date override (YYYY-MM-DD)")
	pf.String("timezone", "", "time zone deciding today's run date")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "json or console")

	root.AddCommand(
		newIngestCmd(c),
		newPipelineCmd(c),
		newExportCmd(c),
		newRunsCmd(c),
		newScheduleCmd(c),
		newProbeCmd(c),
		newInitDBCmd(c),
		newConfigCmd(c),
	)
	return root
}

// load resolves the configuration and builds the logger. Blocking issues
// fail every command except config validate, which reports them itself.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load(config.LoadOptions{
		File:   c.cfgFile,
		DotEnv: c.envFile,
		Flags:  cmd.Flags(),
	})
	if err != nil {
		return c.fail(cmd, err)
	}
	c.cfg = cfg

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log, _ = logging.New("info", "json")
	}
	c.log = logging.OrNop(log)

	if cmd.Name() == "validate" {
		return nil
	}
	issues := config.Validate(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			c.log.Warn("config", zap.String("path", iss.Path), zap.String("issue", iss.Message))
		}
	}
	if err := config.Err(issues); err != nil {
		return c.fail(cmd, fmt.Errorf("invalid configuration: %w", err))
	}
	return nil
}

// fail prints err to stderr and returns it, so the process exits non-zero.
func (c *cli) fail(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "healthetl: %v\n", err)
	return err
}

// withApp opens an app for the duration of fn.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, c.cfg, c.log)
	if err != nil {
		return c.fail(cmd, err)
	}
	defer a.Close()
	if err := fn(ctx, a); err != nil {
		return c.fail(cmd, err)
	}
	return nil
}
