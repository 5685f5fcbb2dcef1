package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"attendance-session-service/internal/config"
	"attendance-session-service/internal/observability"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	ShutdownTimeout time.Duration
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Shutdown drains in-flight requests first, then flushes telemetry.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Warn("http server shutdown", "error", err)
	}
	return a.Observability.Shutdown(ctx)
}
