package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hookvibe/hookcode-sub000/internals/cliutil"
	"github.com/hookvibe/hookcode-sub000/internals/schemas"
	"github.com/hookvibe/hookcode-sub000/internals/timeouts"
	"github.com/hookvibe/hookcode-sub000/sdk"
)

type triggerOptions struct {
	follow bool
	wait   bool
}

func newTriggerCommand() *cobra.Command {
	flags := &taskFlags{}
	opts := &triggerOptions{}
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Queue a task on the daemon, starting it if needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := flags.request(cmd)
			if err != nil {
				return err
			}

			client := sdk.NewClient()
			if err := cliutil.EnsureDaemonRunning(client); err != nil {
				return err
			}

			ctx := cmd.Context()
			created, err := client.CreateTask(ctx, request)
			if err != nil {
				return err
			}
			printer := cliutil.NewPrinter(os.Stdout)
			if !opts.follow && !opts.wait {
				printer.Task(created)
				return nil
			}

			ctx, cancel := context.WithTimeout(ctx, timeouts.Wait)
			defer cancel()
			if opts.follow {
				if _, err := client.StreamLogs(ctx, created.TaskID, printer.LogLine); err != nil {
					return fmt.Errorf("log stream for %s ended: %w", created.TaskID, err)
				}
			}
			final, err := client.WaitForTask(ctx, created.TaskID, timeouts.PollInterval)
			if err != nil {
				return err
			}
			if opts.follow {
				fmt.Fprintln(os.Stdout)
			}
			printer.Task(final)
			if final.Status == schemas.TaskStatusFailed {
				return errSilent
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "stream the task's logs until it finishes")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "wait for the task to finish")
	return cmd
}

func newTaskCommand() *cobra.Command {
	var logs bool
	cmd := &cobra.Command{
		Use:   "task <id>",
		Short: "Show a task's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := sdk.NewClient()
			if !sdk.IsRunning(client.BaseURL()) {
				return errors.New("daemon is not running")
			}

			ctx := cmd.Context()
			printer := cliutil.NewPrinter(os.Stdout)
			if logs {
				if _, err := client.StreamLogs(ctx, args[0], printer.LogLine); err != nil {
					if sdk.IsNotFound(err) {
						return fmt.Errorf("task %s not found", args[0])
					}
					return err
				}
				fmt.Fprintln(os.Stdout)
			}

			task, err := client.Task(ctx, args[0])
			if err != nil {
				if sdk.IsNotFound(err) {
					return fmt.Errorf("task %s not found", args[0])
				}
				return err
			}
			printer.Task(task)
			return nil
		},
	}
	cmd.Flags().BoolVar(&logs, "logs", false, "print the task's logs first, following them while it runs")
	return cmd
}
