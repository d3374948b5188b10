package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/actest/internal/progress"
	"github.com/roach88/actest/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Run      string
}

// TraceIndex lists what a database holds.
type TraceIndex struct {
	Sessions      []string       `json:"sessions"`
	Runs          []store.Run    `json:"runs"`
	FailureCounts map[string]int `json:"failure_counts"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show recorded sessions and fixture runs",
		Long: `Read back what test and fixtures run recorded with --db.

Without --session or --run, lists every session and run with failure
counts per kind. --session prints the progress signals of one session in
arrival order; --run prints one fixture run and its failures.

Examples:
  actest trace --db ./actest.db
  actest trace --db ./actest.db --session 0192f3c4-...
  actest trace --db ./actest.db --run 0192f3c5-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to print")
	cmd.Flags().StringVar(&opts.Run, "run", "", "fixture run to print")
	cmd.MarkFlagsMutuallyExclusive("session", "run")

	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions) error {
	ctx := cmd.Context()

	st, err := store.Open(opts.Database, store.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	switch {
	case opts.Session != "":
		events, err := st.ReadSession(ctx, opts.Session)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read session", err)
		}
		if len(events) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("session not found: %s", opts.Session))
		}
		signals := make([]progress.Signal, len(events))
		for i, ev := range events {
			signals[i] = ev.Signal
		}
		return f.Result(signals, "", "", func(w io.Writer) {
			for _, ev := range events {
				fmt.Fprintf(w, "%4d %s\n", ev.Seq, ev.Signal)
			}
		})

	case opts.Run != "":
		run, err := st.ReadRun(ctx, opts.Run)
		if errors.Is(err, store.ErrRunNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.Run))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		return f.Result(run, "", "", func(w io.Writer) { writeRun(w, run) })
	}

	index := TraceIndex{}
	if index.Sessions, err = st.ListSessions(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}
	if index.Runs, err = st.ListRuns(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if index.FailureCounts, err = st.FailureCounts(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to count failures", err)
	}

	return f.Result(index, "", "", func(w io.Writer) {
		fmt.Fprintf(w, "Sessions (%d):\n", len(index.Sessions))
		for _, s := range index.Sessions {
			fmt.Fprintf(w, "  %s\n", s)
		}
		fmt.Fprintf(w, "Runs (%d):\n", len(index.Runs))
		for _, r := range index.Runs {
			fmt.Fprintf(w, "  %s %s fixtures=%d gas=%d/%d%s\n",
				r.ID, r.Target, r.Fixtures, r.GasAvailable, r.GasRequired, rejectedMark(r.Rejected))
		}
		if len(index.FailureCounts) > 0 {
			fmt.Fprintln(w, "Failures by kind:")
			for _, kind := range slices.Sorted(maps.Keys(index.FailureCounts)) {
				fmt.Fprintf(w, "  %s: %d\n", kind, index.FailureCounts[kind])
			}
		}
	})
}

func writeRun(w io.Writer, run store.Run) {
	fmt.Fprintf(w, "Run %s (#%d)\n", run.ID, run.Seq)
	fmt.Fprintf(w, "Target: %s\n", run.Target)
	fmt.Fprintf(w, "Gas: %d available, %d required%s\n", run.GasAvailable, run.GasRequired, rejectedMark(run.Rejected))
	fmt.Fprintf(w, "Fixtures: %d, failed: %d\n", run.Fixtures, len(run.Failures))
	for _, fl := range run.Failures {
		fmt.Fprintf(w, "  [%d] %s: %s\n", fl.Index, fl.Kind, fl.Hint)
	}
}

func rejectedMark(rejected bool) string {
	if rejected {
		return " (rejected)"
	}
	return ""
}
