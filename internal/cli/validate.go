package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/oleksandrkozlov/preferans/internal/report"
	"github.com/oleksandrkozlov/preferans/internal/scenario"
)

// ValidationResult is the outcome of loading one scenario file.
type ValidationResult struct {
	Path     string `json:"path"`
	Valid    bool   `json:"valid"`
	Scenario string `json:"scenario,omitempty"`
	Clients  int    `json:"clients,omitempty"`
	Error    string `json:"error,omitempty"`
}

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Check scenario files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateScenarios(cmd, rootOpts, args)
		},
	}
}

func validateScenarios(cmd *cobra.Command, opts *RootOptions, paths []string) error {
	results := make([]ValidationResult, 0, len(paths))
	invalid, missing := 0, 0
	for _, path := range paths {
		r := ValidationResult{Path: path}
		sc, err := scenario.Load(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			missing++
			r.Error = err.Error()
		case err != nil:
			invalid++
			r.Error = err.Error()
		default:
			r.Valid = true
			r.Scenario = sc.Name
			r.Clients = len(sc.Clients)
		}
		results = append(results, r)
	}

	out := cmd.OutOrStdout()
	if opts.Format == report.FormatJSON {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(out, "ok    %s (%s, %d clients)\n", r.Path, r.Scenario, r.Clients)
			} else {
				fmt.Fprintf(out, "FAIL  %s\n      %s\n", r.Path, r.Error)
			}
		}
	}

	switch {
	case missing > 0:
		return NewExitError(ExitCommandError, fmt.Sprintf("%d scenario file(s) not found", missing))
	case invalid > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid scenario file(s)", invalid))
	}
	return nil
}
