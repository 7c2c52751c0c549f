// Package heartbeat adapts the teacher's internal/coordinator/heartbeat.go
// liveness loop, trimmed to liveness-only: this repository has no
// distributed admission semaphore for the heartbeat to also drive dead-
// instance cleanup for.
package heartbeat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyInstanceHB = "connpool:instance:%s:heartbeat"

// Heartbeat periodically writes this instance's liveness key to Redis
// with a TTL, for cross-instance dashboards (an ambient operational
// concern — it plays no part in any pool's concurrency invariants).
type Heartbeat struct {
	client     redis.UniversalClient
	instanceID string
	interval   time.Duration
	ttl        time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a heartbeat worker. interval/ttl fall back to 10s/30s,
// matching the teacher's defaults in config.applyDefaults.
func New(client redis.UniversalClient, instanceID string, interval, ttl time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Heartbeat{
		client:     client,
		instanceID: instanceID,
		interval:   interval,
		ttl:        ttl,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the heartbeat loop in the background.
func (h *Heartbeat) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.loop(ctx)
	log.Printf("[heartbeat] started: interval=%s ttl=%s instance=%s", h.interval, h.ttl, h.instanceID)
}

// Stop signals the loop to stop and waits for it to exit.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer h.wg.Done()

	h.send(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.send(ctx)
		}
	}
}

func (h *Heartbeat) send(ctx context.Context) {
	key := fmt.Sprintf(keyInstanceHB, h.instanceID)
	if err := h.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), h.ttl).Err(); err != nil {
		log.Printf("[heartbeat] send failed for %s: %v", h.instanceID, err)
	}
}
