package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/microsim/internal/results"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// RunListing is the output of the results command without --run.
type RunListing struct {
	Runs []RunEntry `json:"runs"`
}

// RunEntry describes one recorded run.
type RunEntry struct {
	ID        string `json:"id"`
	Seed      uint64 `json:"seed"`
	StartYear int    `json:"start_year"`
	EndYear   int    `json:"end_year"`
}

// RunReport is the output of the results command with --run.
type RunReport struct {
	Run   RunEntry             `json:"run"`
	Years []results.YearResult `json:"years"`
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect a results database",
		Long: `List the runs recorded in a results database, or print the year results
of one run. Years a run did not reach (for example after a fatal error) are
skipped.

Examples:
  microsim results --db results.db
  microsim results --db results.db --run 0193a7c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite results database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to print")

	return cmd
}

func runResults(opts *ResultsOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	db, err := results.OpenSQLite(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open results database", err)
	}
	defer db.Close()

	runs, err := db.Runs(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.RunID == "" {
		listing := RunListing{Runs: make([]RunEntry, 0, len(runs))}
		for _, r := range runs {
			listing.Runs = append(listing.Runs, toEntry(r))
		}
		return outputRunListing(formatter, listing)
	}

	for _, r := range runs {
		if r.ID != opts.RunID {
			continue
		}
		report := RunReport{Run: toEntry(r)}
		for year := r.StartYear; year <= r.EndYear; year++ {
			y, err := db.ReadYear(ctx, r.ID, year)
			if errors.Is(err, sql.ErrNoRows) {
				formatter.VerboseLog("year %d not recorded", year)
				continue
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read year", err)
			}
			report.Years = append(report.Years, y)
		}
		return outputRunReport(formatter, report)
	}

	if err := formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %q not found", opts.RunID), nil); err != nil {
		return err
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("run %q not found", opts.RunID))
}

func toEntry(r results.RunInfo) RunEntry {
	return RunEntry{ID: r.ID, Seed: r.Seed, StartYear: r.StartYear, EndYear: r.EndYear}
}

func outputRunListing(f *OutputFormatter, l RunListing) error {
	if f.Format == "json" {
		return f.Success(l)
	}
	if len(l.Runs) == 0 {
		fmt.Fprintln(f.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range l.Runs {
		fmt.Fprintf(f.Writer, "%s seed=%d years=%d-%d\n", r.ID, r.Seed, r.StartYear, r.EndYear)
	}
	return nil
}

func outputRunReport(f *OutputFormatter, r RunReport) error {
	if f.Format == "json" {
		return f.Success(r)
	}
	fmt.Fprintf(f.Writer, "run %s seed=%d years=%d-%d\n", r.Run.ID, r.Run.Seed, r.Run.StartYear, r.Run.EndYear)
	for _, y := range r.Years {
		if err := results.FormatText(f.Writer, y); err != nil {
			return err
		}
	}
	return nil
}
