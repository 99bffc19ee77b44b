package main

import (
	"github.com/spf13/cobra"

	"resmon/internal/datasource"
)

func newDatasourceCmd(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "datasource",
		Short: "Print the Tinybird datasource definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				cfg, err := resolveConfig(cmd, opts)
				if err != nil {
					return err
				}
				name = cfg.Datasource
			}
			return datasource.Render(cmd.OutOrStdout(), name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Datasource name (defaults to the configured one)")
	return cmd
}
