package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/config"
	"github.com/mossy-p/call-signaling/internal/handlers"
	"github.com/mossy-p/call-signaling/internal/logging"
	"github.com/mossy-p/call-signaling/internal/server"
)

func main() {
	// Load configuration
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
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	core, err := server.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start signaling core", zap.Error(err))
	}
	defer core.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := handlers.RouterOptions{
		Hub:            core.Hub,
		Path:           cfg.Path,
		AllowedOrigins: cfg.AllowedOrigins,
		Verifier:       core.Verifier,
		Socket: handlers.SocketOptions{
			SendBuffer:      cfg.SendBuffer,
			MaxMessageBytes: cfg.MaxMessageBytes,
		},
		Logger: logger,
	}
	if core.Mirror != nil {
		opts.Members = core.Mirror
	}

	logger.Info("starting call signaling server", zap.String("addr", cfg.Addr()), zap.String("path", cfg.Path))
	if err := server.Serve(ctx, cfg.Addr(), handlers.NewRouter(opts), logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		core.Close()
		os.Exit(1)
	}
}
