// Package main is the entrypoint for the connection pooling proxy: it
// loads configuration, wires up metrics and health HTTP servers, builds
// one pool per endpoint via internal/registry, starts the event
// fan-out and instance heartbeat, starts the front-end relay, and
// handles graceful shutdown.
//
// Grounded in the teacher's cmd/proxy/main.go: same ordering of
// metrics server → health checker → pool layer → Redis coordination →
// front-end listener → signal-driven graceful shutdown in reverse
// order. The Phase 3/4 distributed-admission pieces (coordinator,
// distributed queue) are replaced by the in-process registry and
// events/heartbeat collaborators documented in DESIGN.md's drop list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/joao-brasil/connpool/internal/config"
	"github.com/joao-brasil/connpool/internal/events"
	"github.com/joao-brasil/connpool/internal/frontend"
	"github.com/joao-brasil/connpool/internal/health"
	"github.com/joao-brasil/connpool/internal/heartbeat"
	"github.com/joao-brasil/connpool/internal/metrics"
	"github.com/joao-brasil/connpool/internal/registry"
)

var (
	proxyConfigPath     = flag.String("config", "configs/proxy.yaml", "Path to proxy configuration file")
	endpointsConfigPath = flag.String("endpoints", "configs/endpoints.yaml", "Path to endpoints configuration file")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[main] starting connection pooling proxy")

	cfg, err := config.Load(*proxyConfigPath, *endpointsConfigPath)
	if err != nil {
		log.Fatalf("[main] failed to load configuration: %v", err)
	}
	log.Printf("[main] configuration loaded: %d endpoints, instance=%s", len(cfg.Endpoints), cfg.Proxy.InstanceID)
	for _, ep := range cfg.Endpoints {
		log.Printf("[main]   endpoint %s → %s (max_pool_size=%d, min_pool_size=%d)",
			ep.ID, ep.Addr(), ep.MaxPoolSize, ep.MinPoolSize)
	}

	// ─── Metrics HTTP server ───────────────────────────────────────────
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Proxy.MetricsPort),
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[main] metrics server listening on :%d/metrics", cfg.Proxy.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] metrics server error: %v", err)
		}
	}()

	// ─── Health checker ─────────────────────────────────────────────────
	checker := health.NewChecker(cfg)
	healthServer := checker.ServeHTTP(context.Background())

	report := checker.Check(context.Background())
	for _, comp := range report.Components {
		log.Printf("[main]   %s: %s (%s, latency %s)", comp.Name, comp.Status, comp.Message, comp.Latency)
	}
	log.Printf("[main] overall health: %s", report.Status)

	// ─── Event fan-out: local log + Redis pub/sub + Prometheus ─────────
	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Redis.Addr},
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	listener := events.Multi{
		events.LogListener{},
		events.NewRedisListener(context.Background(), redisClient),
		metrics.Listener{},
	}

	// ─── Pool registry ──────────────────────────────────────────────────
	log.Println("[main] initializing pool registry...")
	reg, err := registry.New(context.Background(), cfg.Endpoints, listener)
	if err != nil {
		log.Fatalf("[main] failed to initialize pool registry: %v", err)
	}
	defer func() {
		log.Println("[main] closing pool registry...")
		reg.Close()
	}()
	for _, st := range reg.Stats() {
		log.Printf("[main]   pool %s: idle=%d active=%d max=%d", st.PoolID, st.Idle, st.ActiveCheckouts, st.MaxPoolSize)
	}

	for _, p := range reg.Stats() {
		if pl, ok := reg.Pool(p.PoolID); ok {
			pl.Ready()
		}
	}

	// ─── Instance heartbeat ─────────────────────────────────────────────
	hb := heartbeat.New(redisClient, cfg.Proxy.InstanceID, cfg.Redis.HeartbeatInterval, cfg.Redis.HeartbeatTTL)
	hb.Start(context.Background())
	defer hb.Stop()

	// ─── Front-end relay ────────────────────────────────────────────────
	if len(cfg.Endpoints) == 0 {
		log.Fatalf("[main] no endpoints configured")
	}
	primary := cfg.Endpoints[0].ID
	listenAddr := fmt.Sprintf("%s:%d", cfg.Proxy.ListenAddr, cfg.Proxy.ListenPort)
	feServer := frontend.New(listenAddr, primary, reg)
	if err := feServer.Start(context.Background()); err != nil {
		log.Fatalf("[main] failed to start front-end relay: %v", err)
	}
	defer func() {
		log.Println("[main] stopping front-end relay...")
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		if err := feServer.Stop(shutCtx); err != nil {
			log.Printf("[main] front-end stop error: %v", err)
		}
	}()

	// ─── Graceful shutdown ──────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Println("[main] proxy is ready, waiting for shutdown signal...")
	sig := <-sigCh
	log.Printf("[main] received signal %v, shutting down gracefully...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] health server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] metrics server shutdown error: %v", err)
	}
	if err := checker.Close(); err != nil {
		log.Printf("[main] health checker close error: %v", err)
	}
	if err := redisClient.Close(); err != nil {
		log.Printf("[main] redis client close error: %v", err)
	}

	log.Println("[main] shutdown complete")
}
