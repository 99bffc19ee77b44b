package main

import (
	"errors"

	"github.com/spf13/cobra"

	"resmon/internal/gotest"
	"resmon/internal/logging"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var rawJSON bool
	cmd := &cobra.Command{
		Use:   "run [flags] [-- go test args]",
		Short: "Run go test and record per-test resource usage",
		Long:  "run executes `go test -json` with the given arguments, samples host resources around every test and exits with the status of go test.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			hooks, coord := newHooks(ctx, cfg)

			status, err := gotest.Run(ctx, args, hooks, gotest.RunOptions{
				Options: gotest.Options{Out: cmd.OutOrStdout(), RawJSON: rawJSON},
				Command: opts.testCommand,
				Stderr:  cmd.ErrOrStderr(),
			})
			if errors.Is(err, gotest.ErrStart) {
				logSummary(ctx, cfg, coord)
				return err
			}
			if err != nil {
				logging.FromContext(ctx).Warn("reading test events", "error", err)
			}
			logSummary(ctx, cfg, coord)
			if status != 0 {
				return exitError{status}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rawJSON, "json", false, "Echo the raw test2json stream instead of plain test output")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var rawJSON bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Record resource usage from a test2json stream on stdin",
		Long:  "watch reads `go test -json` output from stdin, for example `go test -json ./... | resmon watch`, and exits 1 when any package failed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			hooks, coord := newHooks(ctx, cfg)

			status, err := gotest.Watch(ctx, cmd.InOrStdin(), hooks, gotest.Options{Out: cmd.OutOrStdout(), RawJSON: rawJSON})
			if err != nil {
				logging.FromContext(ctx).Warn("reading test events", "error", err)
			}
			logSummary(ctx, cfg, coord)
			if status != 0 {
				return exitError{status}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rawJSON, "json", false, "Echo the raw test2json stream instead of plain test output")
	return cmd
}
