package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/hookvibe/hookcode-sub000/internals/cliutil"
	"github.com/hookvibe/hookcode-sub000/internals/gitflow"
)

func newGuardCommand() *cobra.Command {
	guard := &cobra.Command{
		Use:   "guard",
		Short: "Inspect the push guard of a workspace",
	}
	guard.AddCommand(&cobra.Command{
		Use:   "check [dir]",
		Short: "Check that a workspace's remotes match its recorded upstream and push target",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			root, err := cliutil.RepoRoot(dir)
			if err != nil {
				return err
			}

			mismatches, err := gitflow.CheckWorkspace(root)
			if err != nil {
				return err
			}
			cliutil.NewPrinter(os.Stdout).Guard(root, mismatches)
			if len(mismatches) > 0 {
				return errSilent
			}
			return nil
		},
	})
	return guard
}
