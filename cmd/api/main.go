package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dataset-review/internal/adapters/auth/gateway"
	"dataset-review/internal/adapters/notify/webhook"
	"dataset-review/internal/domain/sessions"
	"dataset-review/internal/platform/logger"
	"dataset-review/internal/ports/auth"
	"dataset-review/internal/ports/notify"
	"dataset-review/internal/router"

	"golang.org/x/sync/errgroup"
)

func main() {
	log := logger.NewFromEnv()

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	r, mgr := router.NewRouter(router.Options{
		AuthVerifier: verifierFromEnv(log),
		Log:          log,
		Sessions: sessions.Config{
			MaxAge:        envDuration("SESSION_MAX_AGE"),
			IdleTimeout:   envDuration("SESSION_IDLE_TIMEOUT"),
			SweepInterval: envDuration("SESSION_SWEEP_INTERVAL"),
		},
		Notify: sinkFromEnv(),
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", map[string]any{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// barrido de sesiones abandonadas; corre hasta el shutdown
	g.Go(func() error {
		if err := mgr.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	log.Info("server stopped", nil)
}

// verifierFromEnv arma el verifier contra la app principal si hay config;
// sin config queda el modo dev (header X-Debug-User-ID).
func verifierFromEnv(log logger.Logger) auth.AuthVerifier {
	baseURL := os.Getenv("AUTH_GATEWAY_URL")
	if baseURL == "" {
		return nil
	}

	client, err := gateway.NewClient(gateway.Config{
		BaseURL: baseURL,
		APIKey:  os.Getenv("AUTH_GATEWAY_API_KEY"),
	})
	if err != nil {
		log.Warn("auth gateway misconfigured, running in dev mode", map[string]any{"error": err.Error()})
		return nil
	}
	return gateway.NewVerifier(client)
}

func sinkFromEnv() notify.Sink {
	url := os.Getenv("NOTIFY_WEBHOOK_URL")
	if url == "" {
		return nil
	}
	return webhook.NewSink(webhook.Config{
		URL:    url,
		Secret: os.Getenv("NOTIFY_WEBHOOK_SECRET"),
	})
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
