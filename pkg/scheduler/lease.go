// Package scheduler implements the Scheduled Driver (component D): a
// cron-ticked enumeration of owned AuthenticationProvider bindings that
// calls the Reconciliation Engine once per binding.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// LeaseConfig holds all required info for initializing the lease's redis
// driver, adapted from the teacher's cache Config shape.
type LeaseConfig struct {
	Addr     string
	Password string
	Database int
}

// Lease is a best-effort, distributed per-binding lock: two replicas racing
// a clock-skewed partition boundary should not double-sync the same binding
// in the same tick. It is a latency optimization, not a correctness
// requirement — the Engine's reconciliation is idempotent regardless
// (spec.md §8), so a failed or skipped lease acquisition is never fatal.
type Lease struct {
	client redis.UniversalClient
}

// NewLease connects to Redis and pings it before returning. A nil Config
// disables the lease: callers should treat a nil *Lease as "always proceed".
func NewLease(cfg *LeaseConfig) (*Lease, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("scheduler: failed to instrument redis tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		return nil, fmt.Errorf("scheduler: failed to instrument redis metrics: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("scheduler: redis ping failed: %w", err)
	}

	return &Lease{client: client}, nil
}

// Acquire attempts a SET NX EX lock for the given binding, held for ttl. It
// returns true if this process won the lease for the current tick.
func (l *Lease) Acquire(ctx context.Context, bindingID string, ttl time.Duration) bool {
	if l == nil {
		return true
	}
	key := fmt.Sprintf("usernaut-sync:lease:%s", bindingID)
	ok, err := l.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		// Redis trouble is not a reason to skip reconciliation — the
		// partition already guarantees at-most-one owner per replica set.
		return true
	}
	return ok
}

// Close releases the underlying redis connection.
func (l *Lease) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}
