package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hookvibe/hookcode-sub000/hookcoded/server"
	"github.com/hookvibe/hookcode-sub000/internals/env"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.RunDaemon(ctx, env.Get()); err != nil {
		log.Fatal("[hookcoded] Failed to start server: ", err)
	}
}
