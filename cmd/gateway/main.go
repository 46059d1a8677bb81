package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate/internal/config"
	"authgate/internal/db"
	"authgate/internal/gateway"
	"authgate/internal/observability"
	"authgate/internal/repo/postgres"
	"authgate/internal/sessions"
	"authgate/internal/tokens"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, "authgate-gateway", cfg.OTLPEndpoint)

	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	sessionStore := sessions.NewRedisStore(sessions.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	defer sessionStore.Close()

	{
		pctx, cancel := config.WithTimeout(2 * time.Second)
		err := sessionStore.Ping(pctx)
		cancel()

		if err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
	}

	// metrics

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)
	metrics := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	// wire up the auth surface

	tokenManager := tokens.NewManager(cfg.SessionSecret, cfg.SessionTTL)
	usersRepo := postgres.NewUsersRepo(pool, prom)

	router := gateway.NewRouter(cfg, log, gateway.Deps{
		Users:    usersRepo,
		Sessions: sessionStore,
		Tokens:   tokenManager,
		Prom:     prom,
		Metrics:  metrics,
		ReadinessMap: map[string]func() error{
			"postgres": func() error {
				pctx, cancel := config.WithTimeout(1 * time.Second)
				defer cancel()
				return pool.Ping(pctx)
			},
			"redis": func() error {
				pctx, cancel := config.WithTimeout(1 * time.Second)
				defer cancel()
				return sessionStore.Ping(pctx)
			},
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("gateway shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		sctx, cancel := config.WithTimeout(10 * time.Second)

		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(sctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
