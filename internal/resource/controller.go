package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would exceed the limit.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Config holds resource limits. Zero values mean unlimited, except
// MaxBackgroundWorkers which defaults to 1.
type Config struct {
	MemoryLimitBytes     int64
	MaxBackgroundWorkers int64
	IOBytesPerSec        int64
}

// Usage is a point-in-time snapshot of the tracked resources.
type Usage struct {
	MemoryBytes       int64
	BackgroundWorkers int64
	IOBytes           int64
}

// Controller enforces the limits of a Config.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted
	memUsed atomic.Int64

	bgSem    *semaphore.Weighted
	bgActive atomic.Int64

	ioLimiter *rate.Limiter
	ioBytes   atomic.Int64
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOBytesPerSec), int(cfg.IOBytesPerSec))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// TryAcquireMemory reserves bytes without blocking.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

// AcquireMemory is TryAcquireMemory returning ErrMemoryLimitExceeded on failure.
func (c *Controller) AcquireMemory(bytes int64) error {
	if !c.TryAcquireMemory(bytes) {
		return ErrMemoryLimitExceeded
	}
	return nil
}

// ReleaseMemory returns a reservation made by AcquireMemory or TryAcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// AcquireBackground waits for a background worker slot.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.bgSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.bgActive.Add(1)
	return nil
}

// TryAcquireBackground takes a background worker slot if one is free.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	if !c.bgSem.TryAcquire(1) {
		return false
	}
	c.bgActive.Add(1)
	return true
}

// ReleaseBackground frees a background worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgActive.Add(-1)
	c.bgSem.Release(1)
}

// AcquireIO waits until the IO budget admits n bytes. Requests larger than
// one second of budget are admitted in burst-sized chunks.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || n <= 0 {
		return nil
	}
	if c.ioLimiter == nil {
		c.ioBytes.Add(int64(n))
		return ctx.Err()
	}

	burst := c.ioLimiter.Burst()
	for remaining := n; remaining > 0; {
		chunk := min(remaining, burst)
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		c.ioBytes.Add(int64(chunk))
		remaining -= chunk
	}
	return nil
}

// Usage returns a snapshot of the tracked resources.
func (c *Controller) Usage() Usage {
	if c == nil {
		return Usage{}
	}
	return Usage{
		MemoryBytes:       c.memUsed.Load(),
		BackgroundWorkers: c.bgActive.Load(),
		IOBytes:           c.ioBytes.Load(),
	}
}
