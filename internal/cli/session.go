package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/demo"
	"github.com/roach88/actest/internal/progress"
	"github.com/roach88/actest/internal/store"
	"github.com/roach88/actest/internal/testrt"
)

// Well-known actor ids of a CLI deployment.
const (
	controlBusID bus.ActorID = "control-bus"
	programID    bus.ActorID = "program"
	serviceID    bus.ActorID = "control"
	operatorID   bus.ActorID = "operator"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Target    string
	Gas       uint64
	MaxActive int
	Database  string
	Timeout   time.Duration
}

// SessionResult is the outcome of one test session.
type SessionResult struct {
	Session string            `json:"session"`
	Signals []progress.Signal `json:"signals"`
	Passed  []string          `json:"passed"`
	Failed  []testrt.Failure  `json:"failed"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the sample test program against a target",
		Long: `Deploy a target and the sample test program, start one session and
print the progress signals the program reports on the control bus.

Exit codes:
  0 - All tests passed
  1 - One or more tests failed, or the session was aborted
  2 - Command error (unknown target, database not writable, etc.)

Examples:
  actest test
  actest test --target counter --gas 500
  actest test --db ./actest.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Target, "target", "counter", "target actor to deploy")
	cmd.Flags().Uint64Var(&opts.Gas, "gas", 1000, "gas sent with the session start signal")
	cmd.Flags().IntVar(&opts.MaxActive, "max-active", 0, "maximum tests in flight (0 = unbounded)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record progress signals to this SQLite database")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "abort the session after this long")

	return cmd
}

func runSession(cmd *cobra.Command, opts *TestOptions) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	sys := bus.NewSystem(bus.WithLogger(logger))
	defer sys.Close()

	target, err := spawnTarget(sys, opts.Target)
	if err != nil {
		return err
	}

	sessionID := uuid.Must(uuid.NewV7()).String()
	recOpts := []testrt.RecorderOption{testrt.WithRecorderLogger(logger)}
	if opts.Database != "" {
		st, err := store.Open(opts.Database, store.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		recOpts = append(recOpts, testrt.WithStore(st, sessionID))
	}
	rec := testrt.NewRecorder(recOpts...)

	program := testrt.NewProgram(demo.Tests(),
		testrt.WithProgramLogger(logger),
		testrt.WithMaxActiveTests(opts.MaxActive),
	)
	if err := sys.SpawnAt(controlBusID, rec); err != nil {
		return WrapExitError(ExitCommandError, "failed to deploy control bus", err)
	}
	if err := sys.SpawnAt(programID, program); err != nil {
		return WrapExitError(ExitCommandError, "failed to deploy test program", err)
	}

	start := testrt.EncodeControlSignal(testrt.ControlSignal{DeployedActor: target})
	reply, err := sys.Call(ctx, controlBusID, programID, start, opts.Gas, 0)
	if err != nil {
		return WrapExitError(ExitFailure, "session did not finish", err)
	}
	if reply.Err != nil {
		return WrapExitError(ExitFailure, "session aborted", reply.Err)
	}

	// Wait for the recorder to drain.
	if _, err := sys.Call(ctx, "", controlBusID, testrt.Sync, 0, 0); err != nil {
		return WrapExitError(ExitFailure, "control bus did not drain", err)
	}

	summary, err := testrt.DecodeSummary(reply.Payload)
	if err != nil {
		return WrapExitError(ExitFailure, "unreadable session summary", err)
	}

	result := SessionResult{
		Session: sessionID,
		Signals: rec.Signals(),
		Passed:  summary.Passed,
		Failed:  summary.Failed,
	}

	var code, message string
	if !summary.OK() {
		code = "E_TEST_FAILED"
		message = fmt.Sprintf("%d test(s) failed", len(summary.Failed))
	}
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return f.Result(result, code, message, func(w io.Writer) {
		for _, sig := range result.Signals {
			fmt.Fprintln(w, sig)
		}
		fmt.Fprintf(w, "\nTest Summary: %d passed, %d failed\n", len(result.Passed), len(result.Failed))
		if opts.Database != "" {
			fmt.Fprintf(w, "Session: %s\n", sessionID)
		}
	})
}

// spawnTarget deploys the demo target called name under its own name.
func spawnTarget(sys *bus.System, name string) (bus.ActorID, error) {
	build, ok := demo.Targets[name]
	if !ok {
		return "", NewExitError(ExitCommandError,
			fmt.Sprintf("unknown target %q: must be one of %v", name, slices.Sorted(maps.Keys(demo.Targets))))
	}
	id := bus.ActorID(name)
	if err := sys.SpawnAt(id, build()); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to deploy target", err)
	}
	return id, nil
}
