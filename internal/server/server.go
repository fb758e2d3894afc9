// Package server assembles the pieces shared by both transport bindings.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mossy-p/call-signaling/config"
	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/presence"
	"github.com/mossy-p/call-signaling/internal/redis"
	"github.com/mossy-p/call-signaling/internal/relay"
)

const shutdownTimeout = 10 * time.Second

// Core is the relay hub plus its optional collaborators.
type Core struct {
	Hub      *relay.Hub
	Mirror   *presence.RedisMirror
	Verifier *middleware.Verifier

	redis *goredis.Client
}

// NewCore builds the hub from cfg, connecting to Redis when configured.
func NewCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Core, error) {
	core := &Core{}
	opts := relay.Options{
		Registry:  presence.NewMemory(),
		Logger:    logger,
		DebugEcho: cfg.DebugEcho,
	}

	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		core.redis = client
		core.Mirror = presence.NewRedisMirror(client, cfg.Redis.PresenceTTL, logger)
		opts.Mirror = core.Mirror
		logger.Info("redis presence mirror enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.JWTSecret != "" {
		core.Verifier = middleware.NewVerifier(cfg.JWTSecret)
	}

	core.Hub = relay.NewHub(relay.New(opts), logger)
	return core, nil
}

// Close disconnects every client and flushes the mirror.
func (c *Core) Close() {
	c.Hub.Shutdown()
	if c.Mirror != nil {
		c.Mirror.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
