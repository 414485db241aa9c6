// Package liveness implements the liveness monitor: a periodic scan of
// each group's heartbeat sorted set, evicting any address whose last
// heartbeat is at least as old as the disconnect threshold. Grounded on
// UnifiedClient::PingMonitor / GetTimeoutPingAddrList / KictOutService.
package liveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/jasonwang1/registercenter/internal/engine"
	"github.com/jasonwang1/registercenter/internal/keys"
	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/store"
	"github.com/jasonwang1/registercenter/pkg/metrics"
)

// DisconnectThreshold is the maximum age a heartbeat may reach before its
// address is evicted, matching UnifiedClient::m_MaxDisconnectTime.
const DisconnectThreshold = 9 * time.Second

// TickInterval is how often the monitor scans every group.
const TickInterval = 3 * time.Second

// OnEvict is invoked for every address the monitor evicts, so the caller
// can push a change-notification event.
type OnEvict func(group string, inst model.ServiceInstance)

// Monitor periodically scans the heartbeat sets of every configured
// group and evicts stale entries.
type Monitor struct {
	stores  *store.Manager
	engine  *engine.Engine
	logger  *slog.Logger
	clock   func() time.Time
	onEvict OnEvict
	metrics *metrics.LivenessMetrics
}

// New builds a Monitor. A nil logger falls back to slog.Default; a nil
// metrics disables instrumentation.
func New(stores *store.Manager, eng *engine.Engine, onEvict OnEvict, logger *slog.Logger, m *metrics.LivenessMetrics) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{stores: stores, engine: eng, onEvict: onEvict, logger: logger, clock: time.Now, metrics: m}
}

// Run ticks every TickInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick scans every configured group once, evicting stale addresses.
func (m *Monitor) Tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.ScanDuration.Observe(time.Since(start).Seconds())
		}
	}()
	threshold := float64(m.clock().Add(-DisconnectThreshold).UnixMilli())
	for _, group := range m.stores.Groups() {
		st, err := m.stores.ForGroup(group)
		if err != nil {
			m.logger.Warn("liveness tick: cannot resolve group store", "group", group, "error", err)
			continue
		}
		stale, err := st.ZRangeByScore(ctx, keys.ServicePing(group), 0, threshold)
		if err != nil {
			m.logger.Warn("liveness tick: scan failed", "group", group, "error", err)
			continue
		}
		for _, addr := range stale {
			notified, inst, err := m.engine.Evict(ctx, st, group, addr)
			if err != nil {
				m.logger.Warn("liveness eviction failed", "group", group, "addr", addr, "error", err)
				continue
			}
			if notified {
				if m.metrics != nil {
					m.metrics.EvictionsTotal.Inc()
				}
				if m.onEvict != nil {
					m.onEvict(group, inst)
				}
			}
		}
	}
}
