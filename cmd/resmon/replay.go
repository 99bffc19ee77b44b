package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"resmon/internal/sink"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Upload a recorded NDJSON file",
		Long:  "replay sends the records of a file written with --file to the configured destination, in batches of --batch-size.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			if cfg.Disable {
				return fmt.Errorf("telemetry is disabled")
			}
			if cfg.File != "" {
				return fmt.Errorf("replay needs a network destination, not --file")
			}
			ctx := cmd.Context()
			writer, err := newWriter(ctx, cfg)
			if err != nil {
				return err
			}
			if writer == nil {
				return fmt.Errorf("no destination configured: set TINYBIRD_WRITE_TOKEN or GREPTIMEDB_ENDPOINT")
			}
			rows, err := sink.ReadRecordsFile(input)
			if err != nil {
				return err
			}
			sent, err := sink.Replay(ctx, rows, writer, cfg.BatchSize)
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d of %d records to %s\n", sent, len(rows), cfg.Mode())
			return err
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Path to an NDJSON telemetry file")
	cmd.MarkFlagRequired("input")
	return cmd
}
