// Command reportd serves the saved comparison reports over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"morphocv/adapters/report"
	"morphocv/internal"
	"morphocv/internal/config"
	"morphocv/ui"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "reportd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := internal.NewDefaultLogger()

	archive, err := report.NewArchive(cfg.Paths.ReportDir, logger)
	if err != nil {
		return err
	}
	server, err := ui.NewServer(archive, cfg.Server.GinMode, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Start(ctx, cfg.Server.Addr)
}
