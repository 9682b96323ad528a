package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/microsim/internal/config"
	"github.com/roach88/microsim/internal/diag"
	"github.com/roach88/microsim/internal/engine"
	"github.com/roach88/microsim/internal/executor"
	"github.com/roach88/microsim/internal/metrics"
	"github.com/roach88/microsim/internal/models"
	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/results"
	"github.com/roach88/microsim/internal/tracing"
	"github.com/roach88/microsim/internal/travel"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs results.RunIDGenerator
}

// RunSummary is the output of a completed run.
type RunSummary struct {
	RunID        string               `json:"run_id"`
	Seed         uint64               `json:"seed"`
	StartYear    int                  `json:"start_year"`
	EndYear      int                  `json:"end_year"`
	Years        []results.YearResult `json:"years"`
	SoftFailures []diag.Named         `json:"soft_failures"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate a population over a range of years",
		Long: `Load the initial population and rule parameters, then simulate every year
from --start-year to --end-year inclusive.

Each year's tallies are printed and, when configured, written to a SQLite
results database and a CSV file. Flags override MICROSIM_* environment
variables, which override the config file.

Example:
  microsim run --population pop.yaml --start-year 2011 --end-year 2020 --seed 42
  microsim run -c microsim.yaml --results-db results.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := config.New()
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return WrapExitError(ExitCommandError, "failed to bind flags", err)
			}
			cfg, err := config.Load(v, opts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			cfg.Verbose = cfg.Verbose || opts.Verbose
			return runSimulation(cmd, opts, cfg)
		},
	}

	d := config.Defaults()
	f := cmd.Flags()
	f.Uint64("seed", d.Seed, "master seed of the random generator")
	f.Int("start-year", d.StartYear, "first simulated year")
	f.Int("end-year", d.EndYear, "last simulated year (inclusive)")
	f.Int("workers", d.Workers, "parallel workers for labor-market rebalancing (0 = GOMAXPROCS)")
	f.String("params", d.Params, "CUE file with rule parameters (default: built-in)")
	f.String("population", d.Population, "YAML file with the initial population")
	f.String("results-db", d.Results.DB, "SQLite results database to append to")
	f.String("results-csv", d.Results.CSV, "CSV file to write year results to")
	f.String("metrics-file", d.Metrics.File, "write Prometheus metrics to this file after the run")
	f.String("tracing-exporter", d.Tracing.Exporter, "span exporter (none|stdout|file)")
	f.String("tracing-file-path", d.Tracing.FilePath, "JSONL output of the file span exporter")

	return cmd
}

func runSimulation(cmd *cobra.Command, opts *RunOptions, cfg config.Config) error {
	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping after the current year", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = results.UUIDv7Generator{}
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	summary, err := simulate(ctx, cfg, runIDs, logger)
	if err != nil {
		if formatter.Format == "json" {
			return formatter.ReportError(errorCode(err), err)
		}
		return err
	}
	return outputRunSummary(formatter, summary)
}

// simulate wires every component from cfg and runs the scheduler.
func simulate(ctx context.Context, cfg config.Config, runIDs results.RunIDGenerator, logger *slog.Logger) (*RunSummary, error) {
	p, err := loadParams(cfg.Params)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load parameters", err)
	}
	logger.Info("parameters loaded", "file", cfg.Params, "zones", len(p.Zones))

	store, err := population.LoadYAMLFile(cfg.Population)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load population", err)
	}
	counts := population.Tally(store)
	logger.Info("population loaded",
		"file", cfg.Population,
		"households", counts.Households,
		"persons", counts.Persons,
		"dwellings", counts.Dwellings,
		"jobs", counts.Jobs)

	if err := checkZones(store, p); err != nil {
		return nil, WrapExitError(ExitCommandError, "population does not match the zone system", err)
	}
	tp, err := travel.NewMatrix(p.Zones, p.Travel)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build travel times", err)
	}
	set := models.NewSet(store, p, tp, executor.New(cfg.Workers))

	runID := runIDs.Generate()
	mem := &results.MemorySink{}
	sinks := results.MultiSink{mem}

	if cfg.Results.DB != "" {
		db, err := results.OpenSQLite(cfg.Results.DB)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open results database", err)
		}
		defer closeLogged(logger, "results database", db)
		if err := db.BeginRun(ctx, results.RunInfo{ID: runID, Seed: cfg.Seed, StartYear: cfg.StartYear, EndYear: cfg.EndYear}); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to record run", err)
		}
		sinks = append(sinks, db)
	}
	if cfg.Results.CSV != "" {
		f, err := os.Create(cfg.Results.CSV)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create results csv", err)
		}
		defer closeLogged(logger, "results csv", f)
		sinks = append(sinks, results.NewCSVSink(f))
	}

	m, err := metrics.New()
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to create metrics", err)
	}
	tracer, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create tracer", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Error("error flushing spans", "error", err)
		}
	}()

	sched := engine.New(cfg.Seed,
		engine.WithSink(sinks),
		engine.WithRunID(runID),
		engine.WithMetrics(m),
		engine.WithTracer(tracer.Tracer()),
		engine.WithSummaries(set.Summaries()...),
		engine.WithLogger(logger),
	)
	if err := set.Register(sched); err != nil {
		return nil, WrapExitError(ExitFailure, "failed to register models", err)
	}

	logger.Info("simulation starting", "run_id", runID, "seed", cfg.Seed, "start", cfg.StartYear, "end", cfg.EndYear)
	runErr := sched.Run(ctx, cfg.StartYear, cfg.EndYear)

	if cfg.Metrics.File != "" {
		if err := m.WriteFile(cfg.Metrics.File); err != nil {
			logger.Error("error writing metrics", "error", err)
		}
	}
	if runErr != nil {
		return nil, WrapExitError(ExitFailure, simulationFailure(runErr), runErr)
	}
	logger.Info("simulation finished", "run_id", runID, "years", len(mem.Years))

	return &RunSummary{
		RunID:        runID,
		Seed:         cfg.Seed,
		StartYear:    cfg.StartYear,
		EndYear:      cfg.EndYear,
		Years:        mem.Years,
		SoftFailures: sched.SoftFailureTotals(),
	}, nil
}

func loadParams(path string) (*params.Params, error) {
	if path == "" {
		return params.Default()
	}
	return params.Load(path)
}

// errorCode maps a run error to its CLI error code.
func errorCode(err error) string {
	var pe *params.Error
	if errors.As(err, &pe) {
		return ErrCodeInvalidParams
	}
	if _, ok := engine.ErrorCode(err); ok {
		return ErrCodeSimulation
	}
	switch {
	case errors.Is(err, population.ErrInconsistent):
		return ErrCodeInvalidPopulation
	case GetExitCode(err) == ExitCommandError:
		return ErrCodeInvalidConfig
	default:
		return ErrCodeGeneric
	}
}

// simulationFailure names the failure class of a fatal run error.
func simulationFailure(err error) string {
	switch {
	case engine.IsModelFailure(err):
		return "model failed"
	case engine.IsSinkFailure(err):
		return "results sink failed"
	case engine.IsUnregisteredKind(err):
		return "event kind has no model"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "simulation cancelled"
	default:
		return "simulation aborted"
	}
}

func outputRunSummary(f *OutputFormatter, s *RunSummary) error {
	if f.Format == "json" {
		return f.Success(s)
	}
	w := f.Writer
	fmt.Fprintf(w, "run %s seed=%d years=%d-%d\n", s.RunID, s.Seed, s.StartYear, s.EndYear)
	for _, y := range s.Years {
		if err := results.FormatText(w, y); err != nil {
			return err
		}
	}
	writeSoftFailures(w, s.SoftFailures)
	return nil
}

func writeSoftFailures(w io.Writer, totals []diag.Named) {
	if len(totals) == 0 {
		return
	}
	fmt.Fprintln(w, "soft failures:")
	for _, n := range totals {
		fmt.Fprintf(w, "  %q %d\n", n.Name, n.Value)
	}
}

// closeLogged closes an output at the end of a run. A failure is logged rather
// than returned so it never replaces the run's own error.
func closeLogged(logger *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("error closing "+what, "error", err)
	}
}
