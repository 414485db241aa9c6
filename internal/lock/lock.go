// Package lock implements the registry's advisory per-(group, addr) lock.
//
// Unlike the teacher's internal/infrastructure/lock.DistributedLock (a
// Lua-guarded, value-checked lock with exponential backoff), this lock's
// contract is the narrower one RedisInteracts::LockServiceInfo /
// UnlockServiceInfo implement: a plain SETNX-with-TTL acquire, bounded
// retry, and an unconditional delete on release.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jasonwang1/registercenter/internal/keys"
	"github.com/jasonwang1/registercenter/internal/store"
	"github.com/jasonwang1/registercenter/pkg/metrics"
)

const (
	maxAttempts   = 30
	retryInterval = 5 * time.Millisecond
	leaseTTL      = 50 * time.Millisecond
)

// ErrBusy is returned when every acquire attempt is exhausted.
var ErrBusy = errors.New("lock: busy")

// Manager acquires and releases the per-(group, addr) service info lock.
type Manager struct {
	logger  *slog.Logger
	metrics *metrics.LockMetrics
}

// NewManager builds a Manager. A nil logger falls back to slog.Default; a
// nil metrics disables instrumentation.
func NewManager(logger *slog.Logger, m *metrics.LockMetrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, metrics: m}
}

// Acquire blocks (up to maxAttempts*retryInterval) trying to set the lock
// key. It returns ErrBusy if every attempt fails to observe the key
// absent.
func (m *Manager) Acquire(ctx context.Context, st store.Store, group, addr string) error {
	start := time.Now()
	key := keys.ServiceInfoLock(group, addr)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ok, err := st.AtomicSetIfAbsentWithTTL(ctx, key, addr, leaseTTL)
		if err != nil {
			m.recordAcquire("error", start)
			return err
		}
		if ok {
			m.recordAcquire("acquired", start)
			return nil
		}
		select {
		case <-ctx.Done():
			m.recordAcquire("error", start)
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	m.recordAcquire("busy", start)
	if m.metrics != nil {
		m.metrics.BusyTotal.Inc()
	}
	return ErrBusy
}

func (m *Manager) recordAcquire(outcome string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.AcquireAttemptsTotal.WithLabelValues(outcome).Inc()
	m.metrics.AcquireDuration.Observe(time.Since(start).Seconds())
}

// Release unconditionally deletes the lock key. Failures are logged, not
// returned: the lease's TTL bounds how long a failed release can block
// other callers.
func (m *Manager) Release(ctx context.Context, st store.Store, group, addr string) {
	key := keys.ServiceInfoLock(group, addr)
	if err := st.Unlink(ctx, key); err != nil {
		m.logger.Warn("lock release failed", "group", group, "addr", addr, "error", err)
	}
}
