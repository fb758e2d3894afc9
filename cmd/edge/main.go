package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/config"
	"github.com/mossy-p/call-signaling/internal/edge"
	"github.com/mossy-p/call-signaling/internal/logging"
	"github.com/mossy-p/call-signaling/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := server.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start signaling core", zap.Error(err))
	}
	defer core.Close()

	handler := edge.NewHandler(core.Hub, edge.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		Verifier:        core.Verifier,
		SendBuffer:      cfg.SendBuffer,
		MaxMessageBytes: cfg.MaxMessageBytes,
	}, logger)

	logger.Info("starting edge signaling entry point", zap.String("addr", cfg.Addr()), zap.String("path", edge.ConnectPath))
	if err := server.Serve(ctx, cfg.Addr(), handler, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		core.Close()
		os.Exit(1)
	}
}
