// Package main is a concurrent load driver for manual soak-testing the
// pool's CMAP semantics directly (no TCP front end involved): it spins
// up N worker goroutines that repeatedly check a connection out of a
// registry.Registry, hold it for a simulated "query" duration, and
// check it back in, then prints attempt, success, failure and discard
// counts and the average checkout wait at the end.
//
// Grounded in the teacher's cmd/loadgen/main.go stub, adapted to drive
// internal/registry.Registry.Checkout/Checkin instead of the old
// pool.Manager, so it exercises the boundary scenarios from spec.md §8
// (maxPoolSize contention, maxConnecting throttling, wait-queue
// timeout) against the CMAP pool rather than a TDS connection string.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joao-brasil/connpool/internal/config"
	"github.com/joao-brasil/connpool/internal/events"
	"github.com/joao-brasil/connpool/internal/registry"
)

var (
	proxyConfigPath     = flag.String("config", "configs/proxy.yaml", "Path to proxy configuration file")
	endpointsConfigPath = flag.String("endpoints", "configs/endpoints.yaml", "Path to endpoints configuration file")
	endpointID          = flag.String("endpoint", "", "Endpoint id to drive load against (defaults to the first configured endpoint)")
	workers             = flag.Int("workers", 50, "Number of concurrent worker goroutines")
	duration            = flag.Duration("duration", 30*time.Second, "Total run duration")
	holdTime            = flag.Duration("hold", 5*time.Millisecond, "Simulated time a worker holds a checked-out connection")
)

// result accumulates the outcomes of every worker iteration for the
// final report; fields are only ever touched via atomic ops.
type result struct {
	attempts    int64
	successes   int64
	failures    int64
	discarded   int64
	totalWaitNs int64
}

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(*proxyConfigPath, *endpointsConfigPath)
	if err != nil {
		log.Fatalf("[loadgen] failed to load configuration: %v", err)
	}

	target := *endpointID
	if target == "" {
		if len(cfg.Endpoints) == 0 {
			log.Fatalf("[loadgen] no endpoints configured")
		}
		target = cfg.Endpoints[0].ID
	}
	if _, ok := cfg.EndpointByID(target); !ok {
		log.Fatalf("[loadgen] unknown endpoint %q", target)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[loadgen] interrupted, winding down...")
		cancel()
	}()

	reg, err := registry.New(context.Background(), cfg.Endpoints, events.LogListener{})
	if err != nil {
		log.Fatalf("[loadgen] failed to build registry: %v", err)
	}
	defer reg.Close()

	if p, ok := reg.Pool(target); ok {
		p.Ready()
	}

	log.Printf("[loadgen] driving %d workers against endpoint %q for %s (hold=%s)",
		*workers, target, *duration, *holdTime)

	var res result
	var wg sync.WaitGroup
	wg.Add(*workers)
	for i := 0; i < *workers; i++ {
		go func(id int) {
			defer wg.Done()
			runWorker(ctx, reg, target, &res)
		}(i)
	}
	wg.Wait()

	report(&res)
}

func runWorker(ctx context.Context, reg *registry.Registry, endpointID string, res *result) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		conn, err := reg.Checkout(ctx, endpointID)
		waited := time.Since(start)
		atomic.AddInt64(&res.attempts, 1)
		atomic.AddInt64(&res.totalWaitNs, waited.Nanoseconds())

		if err != nil {
			atomic.AddInt64(&res.failures, 1)
			continue
		}

		jitter := time.Duration(rand.Int63n(int64(*holdTime) + 1))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
		}

		// A small fraction of checkouts simulate a broken connection,
		// exercising the Discard path (spec.md §4.2's "checkin with
		// error" variant) rather than always returning cleanly.
		if rand.Intn(50) == 0 {
			reg.Discard(endpointID, conn)
			atomic.AddInt64(&res.discarded, 1)
			continue
		}

		reg.Checkin(endpointID, conn)
		atomic.AddInt64(&res.successes, 1)
	}
}

func report(res *result) {
	attempts := atomic.LoadInt64(&res.attempts)
	successes := atomic.LoadInt64(&res.successes)
	failures := atomic.LoadInt64(&res.failures)
	discarded := atomic.LoadInt64(&res.discarded)
	totalWait := time.Duration(atomic.LoadInt64(&res.totalWaitNs))

	fmt.Println("--- loadgen report ---")
	fmt.Printf("attempts:        %d\n", attempts)
	fmt.Printf("successes:       %d\n", successes)
	fmt.Printf("checkout failed: %d\n", failures)
	fmt.Printf("discarded:       %d\n", discarded)
	if attempts > 0 {
		fmt.Printf("avg checkout wait: %s\n", totalWait/time.Duration(attempts))
	}
}
