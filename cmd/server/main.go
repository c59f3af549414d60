package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/thereayou/ligabpi/internal/config"
	"github.com/thereayou/ligabpi/internal/logging"
	"github.com/thereayou/ligabpi/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closer := logging.Setup(cfg.Env, cfg.LogFile)
	defer closer.Close()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Error("server init failed", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, ":"+cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
