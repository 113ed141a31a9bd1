package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is the networked shared-cache backend. When the client reports the
// server unreachable, Redis transparently falls back to an in-process
// Memory instance and flips its Degraded signal — values written during a
// degraded window stay process-local (never widened in visibility) and are
// lost on restart, matching §6.5's "cache loss degrades performance only".
type Redis struct {
	client   *redis.Client
	fallback *Memory
	degraded atomic.Bool
	log      *logrus.Entry
}

// NewRedis builds a Redis-backed Shared cache. addr is a host:port pair; ttl
// for individual keys is supplied per-call by callers via Set.
func NewRedis(addr string, log *logrus.Entry) *Redis {
	return &Redis{
		client:   redis.NewClient(&redis.Options{Addr: addr}),
		fallback: NewMemory(true),
		log:      log,
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if r.degraded.Load() {
		return r.fallback.Get(ctx, key)
	}
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		r.markDegraded(err)
		return r.fallback.Get(ctx, key)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if r.degraded.Load() {
		return r.fallback.Set(ctx, key, value, ttl)
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.markDegraded(err)
		return r.fallback.Set(ctx, key, value, ttl)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if r.degraded.Load() {
		return r.fallback.Remove(ctx, key)
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.markDegraded(err)
		return r.fallback.Remove(ctx, key)
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	if r.degraded.Load() {
		return r.fallback.Exists(ctx, key)
	}
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		r.markDegraded(err)
		return r.fallback.Exists(ctx, key)
	}
	return n > 0, nil
}

// Degraded reports whether this cache has fallen back to its in-process
// backend because the networked server was unreachable.
func (r *Redis) Degraded() bool { return r.degraded.Load() }

// Probe attempts to reconnect, clearing the degraded flag on success. The
// composition root calls this on a periodic ticker (see cmd/sdap-bff) so a
// transient network blip self-heals without a restart.
func (r *Redis) Probe(ctx context.Context) {
	if !r.degraded.Load() {
		return
	}
	if err := r.client.Ping(ctx).Err(); err == nil {
		r.degraded.Store(false)
		if r.log != nil {
			r.log.Info("shared cache reconnected, leaving degraded mode")
		}
	}
}

func (r *Redis) markDegraded(err error) {
	if r.degraded.CompareAndSwap(false, true) && r.log != nil {
		r.log.WithFields(logrus.Fields{"error": err}).
			Warn("shared cache backend unreachable, falling back to in-process cache")
	}
}
