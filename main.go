package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/app"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/config"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/http/handlers"
	appmw "github.com/ranggakrisnaa/activity-tracker-api/internal/http/middleware"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to wire application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		log.Fatalf("failed to start background workers: %v", err)
	}

	r := router.New()

	requireAuth := appmw.RequireAuth(a.Signer, a.Store, false)
	requireAPIKey := appmw.RequireAuth(a.Signer, a.Store, true)
	rateLimited := appmw.RateLimit(a.Limiter, cfg.DefaultRateLimit, cfg.RateLimitWindow)

	r.GET("/api/health", handlers.Health)
	r.GET("/metrics", metrics.Handler)

	r.POST("/api/register", handlers.Register(a.Store, a.Cipher, a.Signer, cfg.DefaultRateLimit))
	r.POST("/api/logs", requireAPIKey(rateLimited(handlers.Logs(a.Pipeline, cfg.RetentionDays))))
	r.GET("/api/usage/daily", requireAuth(rateLimited(handlers.UsageDaily(a.Analytics))))
	r.GET("/api/usage/top", requireAuth(rateLimited(handlers.UsageTop(a.Analytics))))
	r.GET("/api/usage/stream", handlers.Stream(a.Signer, a.Store, a.Hub, a.Analytics))

	handler := appmw.RequestLogger(r.Handler)

	server := &fasthttp.Server{Handler: handler}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("activity-tracker-api listening on %s", cfg.ListenAddr)
		serveErr <- server.ListenAndServe(cfg.ListenAddr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			log.Printf("server error: %v", err)
			exitCode = 1
		}
	case <-sig:
		log.Printf("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			log.Printf("listener shutdown error: %v", err)
			exitCode = 1
		}

		cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			log.Printf("app shutdown error: %v", err)
			exitCode = 1
		}
	}

	os.Exit(exitCode)
}
