package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/password"
	redisstore "github.com/MrEthical07/goSession/store/redis"
)

type loadtestOptions struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

// NewLoadtestCmd creates the loadtest subcommand.
func NewLoadtestCmd() *cobra.Command {
	var opts loadtestOptions
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure initiate and verify throughput against a Redis user store",
		Long: `Seed users into Redis (or an in-process miniredis when no address is
given), then run an initiate phase and a verify phase and report latency
percentiles. Passwords use the minimum bcrypt cost so the store and token
paths dominate.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.redisAddr == "" {
				opts.redisAddr = os.Getenv("REDIS_ADDR")
			}
			_, _, err := runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
			return err
		},
	}
	cmd.Flags().IntVar(&opts.users, "users", 1000, "number of users to seed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&opts.ops, "ops", 20000, "operations per phase")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "gs-load", "redis key prefix")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, opts loadtestOptions) (initiate, verify phaseStats, err error) {
	if opts.users <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return phaseStats{}, phaseStats{}, oops.Code("LOADTEST_INVALID").Errorf("users, concurrency, and ops must be > 0")
	}

	addr := opts.redisAddr
	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return phaseStats{}, phaseStats{}, oops.Code("LOADTEST_REDIS_FAILED").Wrap(err)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	defer cleanup()

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{addr}})
	defer func() { _ = client.Close() }()
	store := redisstore.New(client, opts.prefix)

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		return phaseStats{}, phaseStats{}, err
	}

	cfg := goSession.DefaultConfig()
	cfg.Session.Secret = []byte("loadtest-secret-0123456789abcdef0123")
	cfg.Session.Duration = time.Hour
	engine, err := goSession.New().
		WithConfig(cfg).
		WithUserResolver(store).
		WithSecureCompare(hasher).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		return phaseStats{}, phaseStats{}, err
	}
	defer engine.Close()

	fmt.Fprintf(out, "seeding %d users...\n", opts.users)
	startSeed := time.Now()
	hash, err := hasher.Hash("loadtest-password")
	if err != nil {
		return phaseStats{}, phaseStats{}, err
	}
	names := make([]string, opts.users)
	for i := range names {
		names[i] = fmt.Sprintf("user-%d", i)
		if _, err := store.Put(ctx, goSession.UserRecord{
			Username: names[i],
			Email:    names[i] + "@load.test",
		}, hash); err != nil {
			return phaseStats{}, phaseStats{}, err
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var (
		tokensMu sync.Mutex
		tokens   []string
	)
	initiate = runPhase(opts.ops, opts.concurrency, 7919, func(r *rand.Rand) error {
		res, err := engine.Initiate(ctx, names[r.Intn(len(names))], "loadtest-password")
		if err != nil {
			return err
		}
		tokensMu.Lock()
		if len(tokens) < opts.users {
			tokens = append(tokens, res.Token)
		}
		tokensMu.Unlock()
		return nil
	})
	if len(tokens) == 0 {
		return initiate, phaseStats{}, oops.Code("LOADTEST_NO_TOKENS").Errorf("initiate phase issued no tokens")
	}

	verify = runPhase(opts.ops, opts.concurrency, 6151, func(r *rand.Rand) error {
		_, err := engine.Verify(ctx, "Bearer "+tokens[r.Intn(len(tokens))])
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "initiate", initiate)
	printStats(out, "verify", verify)
	return initiate, verify, nil
}

// runPhase spreads ops calls of op across concurrency workers.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
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
	return computeStats(time.Since(start), latencies, failures)
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

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
