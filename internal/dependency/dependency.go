// Package dependency implements the dependency coverage monitor: a
// periodic re-derivation of the demand/supply graph from every live
// record in a group, alerting when no Online instance satisfies a
// declared (type, semver) dependency. Grounded on
// UnifiedClient::RelyMonitor, with the exemplar-selection bug described in
// spec §9 corrected rather than reproduced.
package dependency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/jasonwang1/registercenter/internal/alert"
	"github.com/jasonwang1/registercenter/internal/keys"
	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/store"
	"github.com/jasonwang1/registercenter/pkg/metrics"
)

// TickInterval is how often the monitor re-derives coverage, matching
// UnifiedClient::RelyMonitor's timer period.
const TickInterval = 60 * time.Second

// WarnSwitch reports whether alert delivery is currently enabled, backed
// by the live config snapshot's rely_warning_switch.
type WarnSwitch func() bool

// Monitor periodically checks that every declared dependency across every
// configured group has at least one satisfying Online instance.
type Monitor struct {
	stores  *store.Manager
	alerter alert.Notifier
	warn    WarnSwitch
	logger  *slog.Logger
	metrics *metrics.DependencyMetrics
}

// New builds a Monitor. A nil logger falls back to slog.Default; a nil
// alerter falls back to alert.Noop; a nil metrics disables instrumentation.
func New(stores *store.Manager, alerter alert.Notifier, warn WarnSwitch, logger *slog.Logger, m *metrics.DependencyMetrics) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if alerter == nil {
		alerter = alert.Noop{}
	}
	if warn == nil {
		warn = func() bool { return false }
	}
	return &Monitor{stores: stores, alerter: alerter, warn: warn, logger: logger, metrics: m}
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

type demandKey struct {
	serviceType int
	semver      string
}

// Tick re-derives the demand/supply graph for every configured group and
// alerts on any unsatisfied dependency.
func (m *Monitor) Tick(ctx context.Context) {
	start := time.Now()
	if m.metrics != nil {
		m.metrics.UnsatisfiedGauge.Reset()
	}
	for _, group := range m.stores.Groups() {
		if err := m.tickGroup(ctx, group); err != nil {
			m.logger.Warn("dependency tick failed", "group", group, "error", err)
		}
	}
	if m.metrics != nil {
		m.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Monitor) tickGroup(ctx context.Context, group string) error {
	st, err := m.stores.ForGroup(group)
	if err != nil {
		return err
	}
	raw, err := st.HashScanAll(ctx, keys.ServiceInfo(group))
	if err != nil {
		return err
	}

	supply := make(map[int][]model.ServiceInstance)
	demand := make(map[demandKey]map[string]struct{})

	for addr, data := range raw {
		inst, err := model.ParseRecord([]byte(data))
		if err != nil {
			m.logger.Warn("skipping unparseable record in dependency scan", "group", group, "addr", addr, "error", err)
			continue
		}
		supply[inst.ServiceType] = append(supply[inst.ServiceType], inst)
		if inst.Status != model.StatusOnline {
			continue
		}
		for _, rely := range inst.RelyList {
			k := demandKey{serviceType: rely.Type, semver: rely.Semver}
			if demand[k] == nil {
				demand[k] = make(map[string]struct{})
			}
			demand[k][fmt.Sprintf("%d@%s", inst.ServiceType, inst.Semver)] = struct{}{}
		}
	}

	for k, demanders := range demand {
		candidates := supply[k.serviceType]
		if m.satisfied(k, candidates) {
			continue
		}
		// With no parseable-semver candidate the alert still fires, carrying
		// a zero-value exemplar.
		exemplar, _ := pickExemplar(candidates)
		if m.metrics != nil {
			m.metrics.UnsatisfiedGauge.WithLabelValues(group, fmt.Sprintf("%d", k.serviceType)).Set(1)
		}
		list := make([]string, 0, len(demanders))
		for d := range demanders {
			list = append(list, d)
		}
		m.logger.Warn("unsatisfied dependency coverage",
			"group", group, "rely_type", k.serviceType, "rely_semver", k.semver,
			"exemplar_addr", exemplar.Addr, "demanded_by", list)
		if m.warn() {
			if err := m.alerter.NotifyDependencyGap(ctx, group, exemplar, k.serviceType, k.semver, list); err != nil {
				m.logger.Warn("dependency gap alert delivery failed", "group", group, "error", err)
			} else if m.metrics != nil {
				m.metrics.AlertsEmittedTotal.Inc()
			}
		}
	}
	return nil
}

func (m *Monitor) satisfied(k demandKey, candidates []model.ServiceInstance) bool {
	required, err := semver.NewVersion(k.semver)
	if err != nil {
		return false
	}
	for _, c := range candidates {
		if c.Status != model.StatusOnline {
			continue
		}
		have, err := semver.NewVersion(c.Semver)
		if err != nil {
			continue
		}
		if have.Compare(required) >= 0 {
			return true
		}
	}
	return false
}

// pickExemplar selects the representative candidate for an alert: the
// first parseable-semver candidate, replaced by any later candidate whose
// semver parses and is strictly higher. This replaces the original's
// `size_t last_index = -1; if (last_index >= 0)` check, which (because
// last_index is unsigned) always took the "already have a candidate"
// branch, even on the true first iteration, and compared against an
// uninitialized exemplar.
func pickExemplar(candidates []model.ServiceInstance) (model.ServiceInstance, bool) {
	var best model.ServiceInstance
	var bestVer *semver.Version
	found := false
	for _, c := range candidates {
		v, err := semver.NewVersion(c.Semver)
		if err != nil {
			continue
		}
		if !found {
			best, bestVer, found = c, v, true
			continue
		}
		if v.GreaterThan(bestVer) {
			best, bestVer = c, v
		}
	}
	return best, found
}
