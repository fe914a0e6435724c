package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/selivandex/pricing-engine/internal/app"
	"github.com/selivandex/pricing-engine/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("pricing engine starting")

	a, err := app.New(ctx, cfg, app.Options{RunMigrations: true})
	if err != nil {
		return err
	}

	return a.Run(ctx)
}
