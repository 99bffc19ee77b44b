package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"resmon/internal/report"
	"resmon/internal/sink"
)

func newReportCmd() *cobra.Command {
	var (
		input string
		top   int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a recorded NDJSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := sink.ReadRecordsFile(input)
			if err != nil {
				return err
			}
			opts := report.Options{}
			if out, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(out.Fd())) {
				opts.Color = true
				if w, _, err := term.GetSize(int(out.Fd())); err == nil {
					opts.Width = w
				}
			}
			return report.Render(cmd.OutOrStdout(), report.Summarize(rows, top), opts)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Path to an NDJSON telemetry file")
	cmd.Flags().IntVar(&top, "top", report.DefaultTop, "Rows per ranking")
	cmd.MarkFlagRequired("input")
	return cmd
}
