package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/infrastructure/auth"
	"github.com/erp/weclapp-migration/internal/interfaces/http/handler"
	"github.com/erp/weclapp-migration/internal/interfaces/http/middleware"
	"github.com/erp/weclapp-migration/internal/interfaces/http/router"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the job API",
	Long: `serve starts the job worker and the HTTP API that queues cache, migrate and
clear jobs. Requests need a bearer token issued by "migrator token".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := auth.NewTokenService(cfg.HTTP.JWTSecret, cfg.HTTP.JWTIssuer)
		if err != nil {
			return fmt.Errorf("http.jwt_secret is required to serve the job API: %w", err)
		}

		ctx := context.Background()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.scheduler.Stop(stopCtx); err != nil {
				log.Error("Error stopping job scheduler", zap.Error(err))
			}
		}()

		var limiter *middleware.RateLimiter
		if cfg.HTTP.RateLimitRequests > 0 {
			limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
			defer limiter.Stop()
		}

		if cfg.App.Env == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		engine := router.NewEngine(router.EngineConfig{
			Logger: log,
			Tokens: tokens,
			Meter:  a.meter,
			Tracing: middleware.TracingConfig{
				ServiceName: cfg.Telemetry.ServiceName,
				Enabled:     cfg.Telemetry.Enabled,
			},
			MaxBodySize:    cfg.HTTP.MaxBodySize,
			RateLimiter:    limiter,
			RequestTimeout: cfg.HTTP.WriteTimeout,
			ProfileLabels:  a.prof.IsEnabled(),
			Swagger: middleware.SwaggerConfig{
				Enabled:     cfg.Swagger.Enabled,
				RequireAuth: cfg.Swagger.RequireAuth,
				AllowedIPs:  cfg.Swagger.AllowedIPs,
			},
			Health: a.db,
			Jobs:   handler.NewJobHandler(a.scheduler, a.orchestrator),
		})

		srv := &http.Server{
			Addr:         ":" + cfg.HTTP.Port,
			Handler:      engine,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}

		serveErr := make(chan error, 1)
		go func() {
			log.Info("Server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
			return nil
		case <-quit:
		}
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		log.Info("Server exited gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
