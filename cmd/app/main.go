package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/orderfeed/internal/app"
	"github.com/TemirB/orderfeed/internal/config"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Run(ctx, cfg, logger)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("signal received, shutting down", zap.String("signal", s.String()))
		cancel()
		select {
		case err = <-errCh:
			if err != nil {
				logger.Error("app exited with error", zap.Error(err))
			}
		case <-time.After(15 * time.Second):
			logger.Warn("timeout waiting for app to stop")
		}
	case err = <-errCh:
		if err != nil {
			logger.Error("app run returned error", zap.Error(err))
			cancel()
			logger.Sync()
			os.Exit(1)
		}
		logger.Info("app run finished")
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
