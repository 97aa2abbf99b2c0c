package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hookvibe/hookcode-sub000/internals/env"
	"github.com/hookvibe/hookcode-sub000/internals/version"
)

// errSilent marks failures whose details were already printed.
var errSilent = errors.New("")

type rootOptions struct {
	configPath string
}

func (o *rootOptions) env() *env.EnvStruct {
	envs := *env.Get()
	if o.configPath != "" {
		envs.CONFIG = o.configPath
	}
	return &envs
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "hookcode",
		Short:         "Run coding agents against repository events",
		Version:       version.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $HOOKCODE_CONFIG or ~/.hookcode/hookcode.yaml)")

	root.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newTriggerCommand(),
		newTaskCommand(),
		newGuardCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
