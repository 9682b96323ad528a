package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/microsim/internal/params"
	"github.com/roach88/microsim/internal/population"
	"github.com/roach88/microsim/internal/travel"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Params     string
	Population string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool               `json:"valid"`
	Zones      int                `json:"zones"`
	Population *population.Counts `json:"population,omitempty"`
	Errors     []ValidationError  `json:"errors,omitempty"`
}

// ValidationError is one rejected input.
type ValidationError struct {
	Code    string `json:"code"`
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check parameters and a population without simulating",
		Long: `Load the rule parameters and, when given, the initial population, and report
whether they are usable: the CUE parameters are checked against the schema
and the population's household, dwelling and job links against each other.

Examples:
  microsim validate --params rules.cue
  microsim validate --params rules.cue --population pop.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Params, "params", "", "CUE file with rule parameters (default: built-in)")
	cmd.Flags().StringVar(&opts.Population, "population", "", "YAML file with the initial population")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	result := ValidationResult{}

	formatter.VerboseLog("Loading parameters from %s", displayPath(opts.Params))
	p, err := loadParams(opts.Params)
	if err != nil {
		result.Errors = append(result.Errors, ValidationError{Code: ErrCodeInvalidParams, File: paramsFile(err, opts.Params), Message: paramsMessage(err)})
	} else {
		result.Zones = len(p.Zones)
	}

	if opts.Population != "" {
		formatter.VerboseLog("Loading population from %s", opts.Population)
		store, err := population.LoadYAMLFile(opts.Population)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, ValidationError{Code: ErrCodeInvalidPopulation, File: opts.Population, Message: err.Error()})
		case p != nil:
			counts := population.Tally(store)
			result.Population = &counts
			if err := checkZones(store, p); err != nil {
				result.Errors = append(result.Errors, ValidationError{Code: ErrCodeInvalidPopulation, File: opts.Population, Message: err.Error()})
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// checkZones reports dwellings and jobs placed in zones the travel model does not know.
func checkZones(s population.Store, p *params.Params) error {
	tp, err := travel.NewMatrix(p.Zones, p.Travel)
	if err != nil {
		return err
	}
	known := make(map[int]bool)
	for _, z := range tp.Zones() {
		known[z] = true
	}
	var errs []error
	for _, id := range s.DwellingIDs() {
		if d, _ := s.Dwelling(id); !known[d.Zone] {
			errs = append(errs, fmt.Errorf("dwelling %d: unknown zone %d", id, d.Zone))
		}
	}
	for _, id := range s.JobIDs() {
		if j, _ := s.Job(id); !known[j.Zone] {
			errs = append(errs, fmt.Errorf("job %d: unknown zone %d", id, j.Zone))
		}
	}
	return errors.Join(errs...)
}

func paramsFile(err error, path string) string {
	var pe *params.Error
	if errors.As(err, &pe) && pe.File != "" {
		return pe.File
	}
	return path
}

func paramsMessage(err error) string {
	var pe *params.Error
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}

func displayPath(path string) string {
	if path == "" {
		return "built-in defaults"
	}
	return path
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "Validation passed: %d zone(s)", result.Zones)
	if c := result.Population; c != nil {
		fmt.Fprintf(formatter.Writer, ", %d household(s), %d person(s), %d dwelling(s), %d job(s)",
			c.Households, c.Persons, c.Dwellings, c.Jobs)
	}
	fmt.Fprintln(formatter.Writer)
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "Validation failed with %d error(s):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", e.Code, e.File, e.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))
}
