package server

import (
	"context"
	"log/slog"

	"github.com/hookvibe/hookcode-sub000/hookcoded/core"
	"github.com/hookvibe/hookcode-sub000/internals/conf"
	"github.com/hookvibe/hookcode-sub000/internals/env"
)

// RunDaemon loads configuration, wires the daemon and serves until ctx is
// done.
func RunDaemon(ctx context.Context, envs *env.EnvStruct) error {
	config, err := conf.Load(envs.CONFIG)
	if err != nil {
		return err
	}
	logger, logFile := core.InitLogger(config)
	defer logFile.Close()

	base, err := core.New(ctx, core.Options{Config: config, Env: envs, Logger: logger})
	if err != nil {
		logger.Error("failed to start", slog.String("error", err.Error()))
		return err
	}
	defer base.Close()

	return New(base).Run(ctx)
}
