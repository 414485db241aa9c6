// Package engine implements the registry state engine: the refresh diff
// state machine and the eviction operation, both grounded on
// UnifiedClient::RefreshService and UnifiedClient::KictOutService in the
// original RegisterCenter implementation.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jasonwang1/registercenter/internal/keys"
	"github.com/jasonwang1/registercenter/internal/lock"
	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/store"
	"github.com/jasonwang1/registercenter/pkg/metrics"
)

// Engine applies refresh and eviction mutations to the store under the
// per-(group, addr) advisory lock.
type Engine struct {
	locks   *lock.Manager
	logger  *slog.Logger
	clock   func() time.Time
	metrics *metrics.EngineMetrics
}

// New builds an Engine. A nil logger falls back to slog.Default; a nil
// metrics disables instrumentation.
func New(locks *lock.Manager, logger *slog.Logger, m *metrics.EngineMetrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{locks: locks, logger: logger, clock: time.Now, metrics: m}
}

type diffFlags struct {
	cleanType bool
	cleanDeps bool
	cleanAll  bool
	addType   bool
	addDeps   bool
	changed   bool
	notify    bool
}

func computeDiff(exists bool, s, in model.ServiceInstance) diffFlags {
	var f diffFlags

	if exists {
		f.cleanType = s.ServiceType != in.ServiceType && s.ServiceType != 0
		f.cleanDeps = !model.RelySetEqual(s.RelyList, in.RelyList) && len(s.RelyList) != 0
		f.cleanAll = s.GroupTab != in.GroupTab
	}

	f.addType = s.ServiceType != in.ServiceType
	f.addDeps = !model.RelySetEqual(s.RelyList, in.RelyList)

	f.changed = s.Semver != in.Semver ||
		s.ServiceWeight != in.ServiceWeight ||
		s.ConnectMode != in.ConnectMode ||
		s.Nickname != in.Nickname ||
		s.ServiceName != in.ServiceName ||
		s.GroupTab != in.GroupTab ||
		s.ServiceType != in.ServiceType ||
		s.Status != in.Status ||
		!model.RelySetEqual(s.RelyList, in.RelyList)

	f.notify = s.Status != in.Status && in.Status != model.StatusRegister

	return f
}

// Refresh diffs the incoming record against the stored one, applies the
// resulting mutations in clean-before-add order under the per-(group,
// addr) lock, and always records a heartbeat outside the lock. It reports
// whether the caller should treat this as a status-change notification.
func (e *Engine) Refresh(ctx context.Context, st store.Store, group string, in model.ServiceInstance) (isStatusNotify bool, err error) {
	var didMutate bool
	defer func() {
		if e.metrics == nil {
			return
		}
		if err != nil {
			e.metrics.RefreshErrors.Inc()
			return
		}
		mutated := "false"
		if didMutate {
			mutated = "true"
		}
		e.metrics.RefreshTotal.WithLabelValues(mutated).Inc()
		if isStatusNotify {
			e.metrics.NotifyTotal.Inc()
		}
	}()

	infoKey := keys.ServiceInfo(group)

	raw, exists, err := st.HashGet(ctx, infoKey, in.Addr)
	if err != nil {
		return false, err
	}
	var stored model.ServiceInstance
	if exists {
		stored, err = model.ParseRecord([]byte(raw))
		if err != nil {
			e.logger.Warn("discarding unparseable stored record", "group", group, "addr", in.Addr, "error", err)
			exists = false
		}
	}

	flags := computeDiff(exists, stored, in)
	didMutate = flags.cleanType || flags.cleanDeps || flags.cleanAll || flags.addType || flags.addDeps || flags.changed

	if didMutate {
		if err := e.locks.Acquire(ctx, st, group, in.Addr); err != nil {
			return false, err
		}
		defer e.locks.Release(ctx, st, group, in.Addr)

		if flags.cleanType {
			if err := st.SetRem(ctx, keys.ServiceTypeAddrList(group, stored.ServiceType), in.Addr); err != nil {
				return false, err
			}
		}
		if flags.cleanDeps {
			for _, rely := range stored.RelyList {
				if err := st.SetRem(ctx, keys.ServiceTypeLevelAddrList(group, rely.Type), in.Addr); err != nil {
					return false, err
				}
			}
		}
		if flags.cleanAll {
			if err := st.HashDel(ctx, infoKey, in.Addr); err != nil {
				return false, err
			}
		}
		if flags.addType {
			if err := st.SetAdd(ctx, keys.ServiceTypeAddrList(group, in.ServiceType), in.Addr); err != nil {
				return false, err
			}
		}
		if flags.addDeps {
			for _, rely := range in.RelyList {
				if err := st.SetAdd(ctx, keys.ServiceTypeLevelAddrList(group, rely.Type), in.Addr); err != nil {
					return false, err
				}
			}
		}
		if flags.changed {
			data, err := in.MarshalRecord()
			if err != nil {
				return false, err
			}
			if err := st.HashSet(ctx, infoKey, in.Addr, string(data)); err != nil {
				return false, err
			}
		}
	}

	heartbeat(ctx, st, group, in.Addr, e.clock())

	return flags.notify, nil
}

func heartbeat(ctx context.Context, st store.Store, group, addr string, now time.Time) {
	_ = st.ZAdd(ctx, keys.ServicePing(group), float64(now.UnixMilli()), addr)
}

// Evict forces an instance Offline without touching its type/dependency
// set membership, mirroring UnifiedClient::KictOutService. It reports
// whether the eviction actually changed status (so the caller knows
// whether to propagate a change notification) along with the record as it
// stood after eviction.
func (e *Engine) Evict(ctx context.Context, st store.Store, group, addr string) (notified bool, inst model.ServiceInstance, err error) {
	infoKey := keys.ServiceInfo(group)

	if err := e.locks.Acquire(ctx, st, group, addr); err != nil {
		return false, model.ServiceInstance{}, err
	}
	defer e.locks.Release(ctx, st, group, addr)

	raw, exists, err := st.HashGet(ctx, infoKey, addr)
	if err != nil {
		return false, model.ServiceInstance{}, err
	}
	if !exists {
		return false, model.ServiceInstance{}, nil
	}
	inst, err = model.ParseRecord([]byte(raw))
	if err != nil {
		return false, model.ServiceInstance{}, err
	}

	if inst.Status != model.StatusOnline && inst.Status != model.StatusRegister {
		return false, inst, nil
	}

	inst.Status = model.StatusOffline
	data, err := inst.MarshalRecord()
	if err != nil {
		return false, model.ServiceInstance{}, err
	}
	if err := st.HashSet(ctx, infoKey, addr, string(data)); err != nil {
		return false, model.ServiceInstance{}, err
	}
	return true, inst, nil
}
