package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// channelPrefix mirrors the teacher's "proxy:release:%s" Pub/Sub naming
// convention in internal/coordinator/redis.go, renamed for event
// fan-out instead of admission-slot release notification.
const channelPrefix = "connpool:events:"

// RedisListener publishes each event as a JSON Pub/Sub message on a
// per-pool channel, for cross-instance dashboards. It never blocks the
// caller: publishes are fire-and-forget, matching spec.md §4.7's
// "publish-only, fire-and-forget to listener interface".
type RedisListener struct {
	client redis.UniversalClient
	ctx    context.Context
}

// NewRedisListener wraps an existing Redis client. Passing a background
// context is typical; the listener never outlives process shutdown.
func NewRedisListener(ctx context.Context, client redis.UniversalClient) *RedisListener {
	return &RedisListener{client: client, ctx: ctx}
}

func (r *RedisListener) publish(poolID, kind string, payload any) {
	if r == nil || r.client == nil {
		return
	}
	b, err := json.Marshal(struct {
		Kind string `json:"kind"`
		Data any    `json:"data"`
	}{Kind: kind, Data: payload})
	if err != nil {
		log.Printf("[events] redis listener: marshal %s: %v", kind, err)
		return
	}
	if err := r.client.Publish(r.ctx, channelPrefix+poolID, b).Err(); err != nil {
		log.Printf("[events] redis listener: publish %s: %v", kind, err)
	}
}

func (r *RedisListener) OnPoolCreated(e PoolCreated) { r.publish(e.PoolID, "pool_created", e) }
func (r *RedisListener) OnPoolReady(e PoolReady)     { r.publish(e.PoolID, "pool_ready", e) }
func (r *RedisListener) OnPoolCleared(e PoolCleared) { r.publish(e.PoolID, "pool_cleared", e) }
func (r *RedisListener) OnPoolClosed(e PoolClosed)   { r.publish(e.PoolID, "pool_closed", e) }

func (r *RedisListener) OnConnectionCreated(e ConnectionCreated) {
	r.publish(e.PoolID, "connection_created", e)
}
func (r *RedisListener) OnConnectionReady(e ConnectionReady) {
	r.publish(e.PoolID, "connection_ready", e)
}
func (r *RedisListener) OnConnectionClosed(e ConnectionClosed) {
	r.publish(e.PoolID, "connection_closed", e)
}

func (r *RedisListener) OnCheckOutStarted(e CheckOutStarted) {
	r.publish(e.PoolID, "checkout_started", e)
}
func (r *RedisListener) OnCheckedOut(e CheckedOut) { r.publish(e.PoolID, "checked_out", e) }
func (r *RedisListener) OnCheckOutFailed(e CheckOutFailed) {
	r.publish(e.PoolID, "checkout_failed", e)
}
func (r *RedisListener) OnCheckedIn(e CheckedIn) { r.publish(e.PoolID, "checked_in", e) }
