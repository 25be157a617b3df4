package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProvider stores the lease as a Redis key with a TTL, so an expired
// lease disappears on its own instead of needing an explicit teardown
// pass. Not multi-host clustering (spec.md §1 Non-goals) — it is simply a
// network-reachable storage option for the same single logical lease the
// file and null backends also hold.
type RedisProvider struct {
	Key     string
	TTL     time.Duration
	Padding time.Duration

	client *redis.Client
}

// NewRedisProvider builds a Redis-backed lock provider addressing addr,
// storing the lease under key with the given TTL.
func NewRedisProvider(addr, key string, ttl time.Duration) *RedisProvider {
	return &RedisProvider{
		Key:     key,
		TTL:     ttl,
		Padding: DefaultPadding,
		client:  redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (p *RedisProvider) Setup(ctx context.Context) error { return nil }

func (p *RedisProvider) Teardown(ctx context.Context) error {
	lease, held, err := p.Check(ctx)
	if err != nil {
		return err
	}
	if held && lease.OwnerPID == os.Getpid() {
		if err := p.client.Del(ctx, p.Key).Err(); err != nil {
			return fmt.Errorf("lock: redis teardown: %w", err)
		}
	}
	return p.client.Close()
}

func (p *RedisProvider) Check(ctx context.Context) (Lease, bool, error) {
	data, err := p.client.Get(ctx, p.Key).Bytes()
	if err == redis.Nil {
		return Lease{}, false, nil
	}
	if err != nil {
		return Lease{}, false, fmt.Errorf("lock: redis check: %w", err)
	}
	var payload leasePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Lease{}, false, fmt.Errorf("lock: redis check: malformed lease: %w", err)
	}
	lease := Lease{OwnerPID: payload.PID, AcquiredAt: payload.AcquiredAt}
	if expired(lease, p.TTL, p.Padding, time.Now()) {
		return Lease{}, false, nil
	}
	return lease, true, nil
}

func (p *RedisProvider) Set(ctx context.Context) error {
	lease, held, err := p.Check(ctx)
	if err != nil {
		return err
	}
	if held && lease.OwnerPID != os.Getpid() {
		return ErrHeldByOther
	}
	payload := leasePayload{PID: os.Getpid(), AcquiredAt: time.Now()}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	// SET with expiry mirrors the "SET NX PX" idiom but always overwrites,
	// since a self-renewal or an expired foreign lease must both succeed
	// here; the held-by-other case was already rejected above.
	if err := p.client.Set(ctx, p.Key, data, p.TTL+p.Padding).Err(); err != nil {
		return fmt.Errorf("lock: redis set: %w", err)
	}
	return nil
}

func (p *RedisProvider) CheckEnvironment(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("lock: redis backend unreachable: %w", err)
	}
	return nil
}
