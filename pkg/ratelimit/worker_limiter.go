// Package ratelimit provides self-throttling for calls to rate-limited
// upstream APIs.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// WindowLimiter - rolling-window request budget + concurrency cap
// =============================================================================
//
// The upstream mailbox API enforces per-app throttling; violating it causes
// outright request failures, so the adapter self-throttles instead of relying
// on caller discipline. Admission is FIFO and blocking: callers wait until
// both the rolling window and the in-flight cap permit, they are never
// rejected.

// Config holds limiter configuration.
type Config struct {
	RequestsPerWindow int           // Max requests per rolling window (default: 60)
	Window            time.Duration // Window size (default: 1 minute)
	MaxConcurrent     int           // Max in-flight requests (default: 4)
	Key               string        // Redis key for shared window state
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerWindow: 60,
		Window:            time.Minute,
		MaxConcurrent:     4,
		Key:               "mailapi",
	}
}

// WindowLimiter admits requests under a rolling window budget and a
// concurrency cap. Window state lives in Redis when a client is provided,
// so multiple poller instances share one budget; otherwise it is local.
type WindowLimiter struct {
	cfg   *Config
	redis *redis.Client

	sem  chan struct{} // in-flight cap
	turn chan struct{} // admission turnstile, keeps window waiters FIFO

	mu    sync.Mutex
	local []time.Time // admission times, oldest first (local fallback)
}

// NewWindowLimiter creates a limiter. redisClient may be nil.
func NewWindowLimiter(redisClient *redis.Client, cfg *Config) *WindowLimiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = DefaultConfig().RequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	return &WindowLimiter{
		cfg:   cfg,
		redis: redisClient,
		sem:   make(chan struct{}, cfg.MaxConcurrent),
		turn:  make(chan struct{}, 1),
	}
}

// Acquire blocks until a request is admitted or ctx is done. The returned
// release function must be called when the request completes.
func (l *WindowLimiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-l.sem }

	// One waiter at a time past this point, so admission order is FIFO.
	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		release()
		return nil, ctx.Err()
	}
	defer func() { <-l.turn }()

	for {
		wait := l.reserve(ctx)
		if wait <= 0 {
			return release, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			release()
			return nil, ctx.Err()
		}
	}
}

// reserve takes a window slot if one is free, returning 0. Otherwise it
// returns how long until the oldest admission leaves the window.
func (l *WindowLimiter) reserve(ctx context.Context) time.Duration {
	if l.redis != nil {
		if wait, ok := l.reserveRedis(ctx); ok {
			return wait
		}
		// Redis unreachable, fall back to local state.
	}
	return l.reserveLocal()
}

func (l *WindowLimiter) reserveLocal() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.cfg.Window)

	// Drop admissions that left the window.
	i := 0
	for i < len(l.local) && !l.local[i].After(cutoff) {
		i++
	}
	l.local = l.local[i:]

	if len(l.local) < l.cfg.RequestsPerWindow {
		l.local = append(l.local, now)
		return 0
	}

	return l.local[0].Add(l.cfg.Window).Sub(now) + time.Millisecond
}

// reserveRedis runs the sliding-window check atomically in Redis. Returns
// ok=false when Redis fails, letting the caller fall back to local state.
func (l *WindowLimiter) reserveRedis(ctx context.Context) (time.Duration, bool) {
	now := time.Now()

	script := redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local max_requests = tonumber(ARGV[3])
		local window_ms = tonumber(ARGV[4])

		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

		local count = redis.call('ZCARD', key)
		if count < max_requests then
			redis.call('ZADD', key, now, now .. '-' .. math.random())
			redis.call('PEXPIRE', key, window_ms * 2)
			return 1
		end

		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		if #oldest > 0 then
			return -(oldest[2] + window_ms - now)
		end
		return 0
	`)

	result, err := script.Run(ctx, l.redis, []string{"ratelimit:" + l.cfg.Key},
		now.UnixMilli(),
		now.Add(-l.cfg.Window).UnixMilli(),
		l.cfg.RequestsPerWindow,
		l.cfg.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, false
	}

	if result == 1 {
		return 0, true
	}
	if result < 0 {
		return time.Duration(-result)*time.Millisecond + time.Millisecond, true
	}
	return l.cfg.Window, true
}

// Stats holds a snapshot of limiter usage.
type Stats struct {
	InFlight   int `json:"in_flight"`
	WindowUsed int `json:"window_used"`
	WindowMax  int `json:"window_max"`
}

// Stats returns current usage. WindowUsed reflects local state only.
func (l *WindowLimiter) Stats() Stats {
	l.mu.Lock()
	used := len(l.local)
	l.mu.Unlock()

	return Stats{
		InFlight:   len(l.sem),
		WindowUsed: used,
		WindowMax:  l.cfg.RequestsPerWindow,
	}
}
