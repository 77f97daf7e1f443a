package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/handson"
	"github.com/MrEthical07/handson/cache"
	"github.com/MrEthical07/handson/internal/rate"
	"github.com/MrEthical07/handson/ratelimit"
)

func main() {
	var (
		keys        = flag.Int("keys", 1000, "number of distinct client keys")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		limit       = flag.Int("limit", 100, "requests allowed per key per window")
		window      = flag.Duration("window", time.Minute, "fixed window length")
		url         = flag.String("url", "", "drive a running server instead of an in-process gate")
		redisAddr   = flag.String("redis-addr", "", "redis address for the cache phase; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *keys <= 0 || *concurrency <= 0 || *ops <= 0 || *limit <= 0 || *window <= 0 {
		fmt.Fprintln(os.Stderr, "keys, concurrency, ops, limit and window must be > 0")
		os.Exit(2)
	}

	trackerStats, violations := runTrackerPhase(*keys, *ops, *concurrency, *limit, *window)

	target := *url
	if target == "" {
		srv, err := inProcessServer(*limit, *window)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build gate: %v\n", err)
			os.Exit(1)
		}
		defer srv.Close()
		target = srv.URL
		fmt.Printf("using in-process gate at %s\n", target)
	}
	gateStats, admitted, rejected := runGatePhase(target, *ops, *concurrency)

	cacheStats, cleanup, err := runCachePhase(*redisAddr, *keys, *ops, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cache phase failed: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	fmt.Println("---- results ----")
	printStats("tracker", trackerStats)
	fmt.Printf("tracker: per-key count violations=%d\n", violations)
	printStats("gate", gateStats)
	fmt.Printf("gate: admitted=%d rejected=%d\n", admitted, rejected)
	printStats("cache", cacheStats)

	if violations > 0 {
		os.Exit(1)
	}
}

// runTrackerPhase hammers one tracker and checks that the counts handed out
// for each key within a window are exactly 1..n with no repeats.
func runTrackerPhase(keys, ops, concurrency, limit int, window time.Duration) (phaseStats, int) {
	tracker := rate.NewTracker()
	now := time.Now()

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
		counts    = make(map[int][]int, keys)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				k := r.Intn(keys)
				t0 := time.Now()
				count, _, err := tracker.RecordAndCheck(fmt.Sprintf("rate_limit_10.0.0.1_anonymous_/k%d", k), limit, window, now)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				counts[k] = append(counts[k], count)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)

	violations := 0
	for _, c := range counts {
		sort.Ints(c)
		for i, v := range c {
			if v != i+1 {
				violations++
				break
			}
		}
	}
	return computeStats(total, latencies, failures), violations
}

func inProcessServer(limit int, window time.Duration) (*httptest.Server, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := handson.NewMetrics(handson.MetricsConfig{Enabled: true})
	gate, err := ratelimit.New(ratelimit.Config{Limit: limit, Window: window}, rate.NewTracker(),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return httptest.NewServer(gate.Middleware(mux)), nil
}

func runGatePhase(target string, ops, concurrency int) (phaseStats, int64, int64) {
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency,
			MaxIdleConnsPerHost: concurrency,
		},
	}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		admitted  int64
		rejected  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				resp, err := client.Get(target + "/health-probe")
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode == http.StatusTooManyRequests {
						atomic.AddInt64(&rejected, 1)
					} else {
						atomic.AddInt64(&admitted, 1)
					}
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), admitted, rejected
}

func runCachePhase(addr string, keys, ops, concurrency int) (phaseStats, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return phaseStats{}, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}

	c := cache.NewRedis(client, "handson-loadtest:")
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				id := int64(r.Intn(keys) + 1)
				key := cache.UserKey(id)
				t0 := time.Now()
				var dst map[string]any
				ok, err := c.Get(ctx, key, &dst)
				if err == nil && !ok {
					err = c.Set(ctx, key, map[string]any{"id": id, "username": fmt.Sprintf("user%d", id)}, cache.DefaultTTL)
				}
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), cleanup, nil
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
