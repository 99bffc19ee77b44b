package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"resmon/internal/config"
	"resmon/internal/logging"
)

// exitError carries a non-zero exit status from the test command.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type rootOptions struct {
	configPath string
	batchSize  int
	disable    bool
	file       string
	diskPath   string
	gzip       bool
	logLevel   string

	// testCommand replaces `go test -json` in tests.
	testCommand []string
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "resmon",
		Short:         "Per-test resource telemetry for go test",
		Long:          "resmon records CPU, memory and disk usage around every test of a go test run and ships the records to Tinybird, GreptimeDB or a local NDJSON file.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), level)
			cmd.SetContext(logging.NewContext(cmd.Context(), logger))
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	f.IntVar(&opts.batchSize, "batch-size", 50, "Number of test records to batch before sending")
	f.BoolVar(&opts.disable, "disable", false, "Disable telemetry")
	f.StringVar(&opts.file, "file", "", "Append NDJSON records to a local file instead of sending them")
	f.StringVar(&opts.diskPath, "disk-path", "/", "Mount point sampled for disk usage")
	f.BoolVar(&opts.gzip, "gzip", false, "Compress request bodies sent to Tinybird")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(opts),
		newWatchCmd(opts),
		newReplayCmd(opts),
		newReportCmd(),
		newDatasourceCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

// resolveConfig merges defaults, the config file, the environment and any
// flags set explicitly on cmd, then validates the result.
func resolveConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.LookupEnv)

	flags := cmd.Flags()
	if flags.Changed("batch-size") {
		cfg.BatchSize = opts.batchSize
	}
	if flags.Changed("disable") {
		cfg.Disable = opts.disable
	}
	if flags.Changed("file") {
		cfg.File = opts.file
	}
	if flags.Changed("disk-path") {
		cfg.DiskPath = opts.diskPath
	}
	if flags.Changed("gzip") {
		cfg.Compress = opts.gzip
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Execute runs the root command and exits with the test command's status.
func Execute() {
	if err := newRootCmd(&rootOptions{}).ExecuteContext(context.Background()); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
