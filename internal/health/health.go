// Package health provides health-check HTTP endpoints for the proxy's
// infrastructure dependencies: each configured endpoint (dial-only
// reachability) and Redis.
//
// Grounded in the teacher's internal/health/health.go: same Checker/
// HealthReport/ComponentHealth shape, same parallel per-component
// fan-out and /health, /health/ready, /health/live routes. The
// SQL-Server-specific database/sql probe (SELECT 1 / @@VERSION) is
// replaced with a generic dial-only reachability check via
// internal/dialer, since the pool owns no driver and has no query
// surface to probe with.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-brasil/connpool/internal/config"
	"github.com/joao-brasil/connpool/internal/dialer"
	"github.com/joao-brasil/connpool/pkg/address"
)

// Status is a component's health classification.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// ComponentHealth is the health of a single infrastructure dependency.
type ComponentHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

// HealthReport is the overall health report.
type HealthReport struct {
	Status     Status            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	InstanceID string            `json:"instance_id"`
	Components []ComponentHealth `json:"components"`
}

// Checker runs health checks against every configured endpoint and
// Redis.
type Checker struct {
	cfg         *config.Config
	redisClient *redis.Client
	dialer      dialer.Dialer
}

// NewChecker builds a Checker from the loaded configuration.
func NewChecker(cfg *config.Config) *Checker {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	return &Checker{
		cfg:         cfg,
		redisClient: rdb,
		dialer:      dialer.NetDialer{},
	}
}

// Close releases the Redis client.
func (c *Checker) Close() error {
	return c.redisClient.Close()
}

// Check runs every component check in parallel and aggregates the
// result.
func (c *Checker) Check(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		InstanceID: c.cfg.Proxy.InstanceID,
	}

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		components []ComponentHealth
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := c.checkRedis(ctx)
		mu.Lock()
		components = append(components, ch)
		mu.Unlock()
	}()

	for i := range c.cfg.Endpoints {
		ep := &c.cfg.Endpoints[i]
		wg.Add(1)
		go func(ep *address.Endpoint) {
			defer wg.Done()
			ch := c.checkEndpoint(ctx, ep)
			mu.Lock()
			components = append(components, ch)
			mu.Unlock()
		}(ep)
	}

	wg.Wait()
	report.Components = components

	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
			break
		}
	}

	return report
}

func (c *Checker) checkRedis(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := c.redisClient.Ping(ctx)
	latency := time.Since(start)

	if result.Err() != nil {
		return ComponentHealth{
			Name:    "redis",
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("PING failed: %v", result.Err()),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{
		Name:    "redis",
		Status:  StatusHealthy,
		Message: "PONG",
		Latency: latency.String(),
	}
}

// checkEndpoint verifies reachability by dialing the endpoint, without
// running any protocol handshake — the pool's own Maintain/Checkout
// already exercise the handshake path continuously.
func (c *Checker) checkEndpoint(ctx context.Context, ep *address.Endpoint) ComponentHealth {
	start := time.Now()
	name := fmt.Sprintf("endpoint-%s", ep.ID)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := c.dialer.Dial(ctx, ep, dialer.Options{
		ConnectTimeout:  10 * time.Second,
		TLSEnabled:      ep.TLSEnabled,
		TLSServerName:   ep.Host,
		TLSInsecureSkip: ep.TLSInsecureSkip,
	})
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Name:    name,
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("dial failed: %v", err),
			Latency: latency.String(),
		}
	}
	defer conn.Close()

	return ComponentHealth{
		Name:    name,
		Status:  StatusHealthy,
		Message: fmt.Sprintf("connected to %s", ep.Addr()),
		Latency: latency.String(),
	}
}

// ServeHTTP starts the health-check HTTP server.
func (c *Checker) ServeHTTP(ctx context.Context) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, c.Check(r.Context()))
	})

	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, c.Check(r.Context()))
	})

	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	addr := fmt.Sprintf(":%d", c.cfg.Proxy.HealthCheckPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("[health] HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[health] HTTP server error: %v", err)
		}
	}()

	return server
}

func writeReport(w http.ResponseWriter, report *HealthReport) {
	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(report)
}
