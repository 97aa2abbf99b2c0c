package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookvibe/hookcode-sub000/hookcoded/core"
	"github.com/hookvibe/hookcode-sub000/internals/cliutil"
	"github.com/hookvibe/hookcode-sub000/internals/conf"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	flags := &taskFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one task in this process without the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := flags.request(cmd)
			if err != nil {
				return err
			}
			return runInline(cmd.Context(), opts, request)
		},
	}
	flags.register(cmd)
	return cmd
}

func runInline(ctx context.Context, opts *rootOptions, request schemas.TaskCreateRequest) error {
	envs := opts.env()
	config, err := conf.Load(envs.CONFIG)
	if err != nil {
		return err
	}
	// Nothing is queued in this process; keep the daemon's queue untouched.
	config.Queue.Backend = conf.QueueBackendMemory

	base, err := core.New(ctx, core.Options{
		Config: config,
		Env:    envs,
		Logger: core.NewLogger(os.Stderr, slog.LevelInfo),
	})
	if err != nil {
		return err
	}
	defer base.Close()

	printer := cliutil.NewPrinter(os.Stdout)
	task, _, runErr := base.RunTask(ctx, request, printer.LogLine)
	if task == nil {
		return runErr
	}

	stored, err := base.Store.Get(context.WithoutCancel(ctx), task.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	printer.Task(schemas.NewTaskResponse(stored, base.ConsoleURL(stored.ID)))
	if runErr != nil {
		return errSilent
	}
	return nil
}
