// Package main is the entry point for the GravyValet addon gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cos/gravyvalet/cmd/gravyvalet/app"
	"github.com/cos/gravyvalet/pkg/logger"
)

func main() {
	logger.Initialize(os.Getenv("GRAVYVALET_DEBUG") != "")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}
