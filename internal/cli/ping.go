package cli

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/actest/internal/bus"
	"github.com/roach88/actest/internal/demo"
	"github.com/roach88/actest/internal/testrt"
)

// PingResult is the reply of a test program to PING.
type PingResult struct {
	Program string `json:"program"`
	Reply   string `json:"reply"`
}

// NewPingCommand creates the ping command.
func NewPingCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that a test program answers",
		Long: `Deploy the sample test program and send it PING. A healthy program
replies PONG without starting a session.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			logger := newLogger(rootOpts, cmd.ErrOrStderr())
			sys := bus.NewSystem(bus.WithLogger(logger))
			defer sys.Close()

			if err := sys.SpawnAt(programID, testrt.NewProgram(demo.Tests(), testrt.WithProgramLogger(logger))); err != nil {
				return WrapExitError(ExitCommandError, "failed to deploy test program", err)
			}

			reply, err := sys.Call(ctx, operatorID, programID, testrt.Ping, 0, 0)
			if err != nil {
				return WrapExitError(ExitFailure, "no reply", err)
			}
			if reply.Err != nil {
				return WrapExitError(ExitFailure, "ping failed", reply.Err)
			}
			if !bytes.Equal(reply.Payload, testrt.Pong) {
				return NewExitError(ExitFailure, fmt.Sprintf("unexpected reply %q", reply.Payload))
			}

			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if rootOpts.Format == "json" {
				return f.Success(PingResult{Program: string(programID), Reply: string(reply.Payload)})
			}
			return f.Success(string(reply.Payload))
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "how long to wait for the reply")
	return cmd
}
