package main

import (
	"github.com/spf13/cobra"

	"github.com/hookvibe/hookcode-sub000/hookcoded/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: HTTP API and task workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return server.RunDaemon(cmd.Context(), opts.env())
		},
	}
}
