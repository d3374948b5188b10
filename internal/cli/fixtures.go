package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/control"
	"github.com/roach88/actest/internal/fixture"
	"github.com/roach88/actest/internal/store"
)

// FixturesRunOptions holds flags for the fixtures run command.
type FixturesRunOptions struct {
	*RootOptions
	Target        string
	Gas           uint64
	MaxConcurrent int
	Database      string
	Timeout       time.Duration
}

// FixtureResult is the outcome of one fixture.
type FixtureResult struct {
	Index uint32 `json:"index"`
	Name  string `json:"name"`
	Pass  bool   `json:"pass"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// RunResult is the outcome of a fixture run.
type RunResult struct {
	RunID        string          `json:"run_id,omitempty"`
	Target       string          `json:"target"`
	GasAvailable uint64          `json:"gas_available"`
	GasRequired  uint64          `json:"gas_required"`
	Rejected     bool            `json:"rejected"`
	Fixtures     []FixtureResult `json:"fixtures"`
	Passed       int             `json:"passed"`
	Failed       int             `json:"failed"`
}

// SuiteSummary describes a valid fixture file.
type SuiteSummary struct {
	File        string   `json:"file"`
	Target      string   `json:"target,omitempty"`
	Names       []string `json:"names"`
	GasRequired uint64   `json:"gas_required"`
}

// NewFixturesCommand creates the fixtures command group.
func NewFixturesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Validate and run fixture files",
	}
	cmd.AddCommand(newFixturesRunCommand(rootOpts))
	cmd.AddCommand(newFixturesValidateCommand(rootOpts))
	return cmd
}

func newFixturesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a fixture file without running it",
		Long: `Load a fixture file (.yaml, .yml or .cue) and report its fixtures and
the gas a run of them declares.

Examples:
  actest fixtures validate ./counter.yaml
  actest fixtures validate ./counter.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := fixture.LoadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid fixture file", err)
			}

			summary := SuiteSummary{
				File:        args[0],
				Target:      suite.Target,
				Names:       suite.Names,
				GasRequired: fixture.GasRequired(suite.Fixtures),
			}
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return f.Result(summary, "", "", func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s: %d fixture(s), %d gas required\n", summary.File, len(summary.Names), summary.GasRequired)
				for _, name := range summary.Names {
					f.VerboseLog("  %s", name)
				}
			})
		},
	}
}

func newFixturesRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FixturesRunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Run a fixture file against a target",
		Long: `Load a fixture file into a fixture engine, deploy the target and run
every fixture through the engine's control service.

The run is admitted only if the gas sent covers what the fixtures declare.
By default exactly the declared amount is sent.

Exit codes:
  0 - All fixtures passed
  1 - A fixture failed or the run was rejected for gas
  2 - Command error (invalid file, unknown target, etc.)

Examples:
  actest fixtures run ./counter.yaml
  actest fixtures run ./counter.yaml --gas 10
  actest fixtures run ./echo.cue --target echo --db ./actest.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFixtures(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "", "target actor (overrides the file's target)")
	cmd.Flags().Uint64Var(&opts.Gas, "gas", 0, "gas sent with the run (0 = what the fixtures declare)")
	cmd.Flags().IntVar(&opts.MaxConcurrent, "max-concurrent", 0, "maximum fixtures in flight (0 = unbounded)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run to this SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "abort the run after this long")

	return cmd
}

func runFixtures(cmd *cobra.Command, opts *FixturesRunOptions, path string) error {
	suite, err := fixture.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid fixture file", err)
	}
	targetName := opts.Target
	if targetName == "" {
		targetName = suite.Target
	}
	if targetName == "" {
		return NewExitError(ExitCommandError, "no target: set one in the file or with --target")
	}

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database, store.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	sys := bus.NewSystem(bus.WithLogger(logger))
	defer sys.Close()

	target, err := spawnTarget(sys, targetName)
	if err != nil {
		return err
	}

	metrics := prometheus.NewRegistry()
	eng := fixture.New(target, operatorID,
		fixture.WithMaxConcurrent(opts.MaxConcurrent),
		fixture.WithLogger(logger),
		fixture.WithMetrics(metrics),
	)
	service := control.NewService(control.NewDispatcher(eng, logger), control.WithServiceLogger(logger))
	if err := sys.SpawnAt(serviceID, service); err != nil {
		return WrapExitError(ExitCommandError, "failed to deploy control service", err)
	}

	client := control.NewClient(sys, serviceID, operatorID)
	for i, fx := range suite.Fixtures {
		if err := client.Add(ctx, fx); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to add fixture %s", suite.Names[i]), err)
		}
	}

	result := RunResult{
		Target:       targetName,
		GasRequired:  fixture.GasRequired(suite.Fixtures),
		GasAvailable: opts.Gas,
	}
	if result.GasAvailable == 0 {
		result.GasAvailable = result.GasRequired
	}

	failed, err := client.Run(ctx, result.GasAvailable)
	var perr *control.Error
	switch {
	case errors.As(err, &perr) && perr.Kind == control.NotEnoughGas:
		result.Rejected = true
	case err != nil:
		return WrapExitError(ExitFailure, "fixture run failed", err)
	}

	if !result.Rejected {
		result.Fixtures = fixtureResults(suite.Names, failed)
		result.Failed = len(failed)
		result.Passed = len(suite.Fixtures) - len(failed)
	}
	reportMetrics(f, metrics)

	if st != nil {
		rec := store.Run{
			Target:       targetName,
			Fixtures:     len(suite.Fixtures),
			GasAvailable: result.GasAvailable,
			GasRequired:  result.GasRequired,
			Rejected:     result.Rejected,
		}
		for _, ff := range failed {
			rec.Failures = append(rec.Failures, store.RunFailure{Index: ff.Index, Kind: string(ff.Kind), Hint: ff.Text})
		}
		if result.RunID, err = st.WriteRun(ctx, rec); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	var code, message string
	switch {
	case result.Rejected:
		code = "E_NOT_ENOUGH_GAS"
		message = fmt.Sprintf("run rejected: %d gas available, %d needed", perr.Actual, perr.Needed)
	case result.Failed > 0:
		code = "E_FIXTURE_FAILED"
		message = fmt.Sprintf("%d fixture(s) failed", result.Failed)
	}

	return f.Result(result, code, message, func(w io.Writer) {
		if result.Rejected {
			fmt.Fprintf(w, "Run rejected: %d gas available, %d needed\n", result.GasAvailable, result.GasRequired)
			return
		}
		for _, fr := range result.Fixtures {
			if fr.Pass {
				fmt.Fprintf(w, "PASS %s\n", fr.Name)
				continue
			}
			fmt.Fprintf(w, "FAIL %s: %s\n", fr.Name, fr.Hint)
		}
		fmt.Fprintf(w, "\nFixture Summary: %d passed, %d failed\n", result.Passed, result.Failed)
		if result.RunID != "" {
			fmt.Fprintf(w, "Run: %s\n", result.RunID)
		}
	})
}

// fixtureResults merges the failures of a run into one entry per fixture.
func fixtureResults(names []string, failed []control.FailedFixture) []FixtureResult {
	out := make([]FixtureResult, len(names))
	for i, name := range names {
		out[i] = FixtureResult{Index: uint32(i), Name: name, Pass: true}
	}
	for _, ff := range failed {
		if int(ff.Index) >= len(out) {
			continue
		}
		r := &out[ff.Index]
		r.Pass = false
		r.Kind = string(ff.Kind)
		r.Hint = ff.Text
	}
	return out
}

// reportMetrics prints the engine counters in verbose mode.
func reportMetrics(f *OutputFormatter, reg *prometheus.Registry) {
	if !f.Verbose {
		return
	}
	families, err := reg.Gather()
	if err != nil {
		f.VerboseLog("metrics unavailable: %v", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := ""
			for _, lp := range m.GetLabel() {
				labels += fmt.Sprintf(" %s=%s", lp.GetName(), lp.GetValue())
			}
			f.VerboseLog("%s%s %g", mf.GetName(), labels, m.GetCounter().GetValue())
		}
	}
}
