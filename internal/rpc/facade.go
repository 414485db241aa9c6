package rpc

import (
	"context"
	"log/slog"

	"github.com/jasonwang1/registercenter/internal/alert"
	"github.com/jasonwang1/registercenter/internal/engine"
	"github.com/jasonwang1/registercenter/internal/keys"
	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/propagate"
	"github.com/jasonwang1/registercenter/internal/rpcerr"
	"github.com/jasonwang1/registercenter/internal/store"
)

// Facade is the single entry point mapping the six RPC kinds onto the
// registry engine and change propagator.
type Facade struct {
	stores     *store.Manager
	engine     *engine.Engine
	propagator *propagate.Propagator
	alerter    alert.Notifier
	logger     *slog.Logger
}

// New builds a Facade. A nil logger falls back to slog.Default; a nil
// alerter falls back to alert.Noop.
func New(stores *store.Manager, eng *engine.Engine, propagator *propagate.Propagator, alerter alert.Notifier, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	if alerter == nil {
		alerter = alert.Noop{}
	}
	return &Facade{stores: stores, engine: eng, propagator: propagator, alerter: alerter, logger: logger}
}

func (f *Facade) resolve(group string) (store.Store, error) {
	st, err := f.stores.ForGroup(group)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindUnknownGroup, "resolve_group", err)
	}
	return st, nil
}

func validateAddr(addr string) error {
	if addr == "" {
		return rpcerr.New(rpcerr.KindFieldMissing, "validate_addr")
	}
	return nil
}

// Hello answers a liveness probe. It carries no business state change: a
// reachable process always answers ok.
func (f *Facade) Hello(ctx context.Context, from string) (string, error) {
	return "ok", nil
}

// Register refreshes the caller's record and returns the watch list for
// every service type it declared a dependency on.
func (f *Facade) Register(ctx context.Context, inst model.ServiceInstance) ([]WatchEntry, error) {
	if err := validateAddr(inst.Addr); err != nil {
		return nil, err
	}
	st, err := f.resolve(inst.GroupTab)
	if err != nil {
		return nil, err
	}
	if _, err := f.engine.Refresh(ctx, st, inst.GroupTab, inst); err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindStoreOp, "refresh", err)
	}
	watch, err := f.buildWatchList(ctx, st, inst.GroupTab, inst.RelyList)
	if err != nil {
		return nil, err
	}
	f.propagator.PushAlert(inst.GroupTab, inst)
	return watch, nil
}

// Online refreshes the caller's record to Online, optionally enqueues a
// change notification, and returns the watch list, same shape as Register.
func (f *Facade) Online(ctx context.Context, inst model.ServiceInstance) ([]WatchEntry, error) {
	if err := validateAddr(inst.Addr); err != nil {
		return nil, err
	}
	st, err := f.resolve(inst.GroupTab)
	if err != nil {
		return nil, err
	}
	notify, err := f.engine.Refresh(ctx, st, inst.GroupTab, inst)
	if err != nil {
		return nil, rpcerr.Wrap(rpcerr.KindStoreOp, "refresh", err)
	}
	watch, err := f.buildWatchList(ctx, st, inst.GroupTab, inst.RelyList)
	if err != nil {
		return nil, err
	}
	if notify {
		f.propagator.PushChange(inst.GroupTab, inst)
	}
	f.propagator.PushAlert(inst.GroupTab, inst)
	return watch, nil
}

// Offline refreshes the caller's record to Offline and, if that's a real
// status change, fans the notification out synchronously (not via the
// queue) before returning.
func (f *Facade) Offline(ctx context.Context, inst model.ServiceInstance) error {
	if err := validateAddr(inst.Addr); err != nil {
		return err
	}
	st, err := f.resolve(inst.GroupTab)
	if err != nil {
		return err
	}
	notify, err := f.engine.Refresh(ctx, st, inst.GroupTab, inst)
	if err != nil {
		return rpcerr.Wrap(rpcerr.KindStoreOp, "refresh", err)
	}
	if notify {
		if err := f.propagator.ChangeNotify(ctx, inst.GroupTab, inst); err != nil {
			f.logger.Warn("offline fan-out failed", "group", inst.GroupTab, "addr", inst.Addr, "error", err)
		}
	}
	f.propagator.PushAlert(inst.GroupTab, inst)
	return nil
}

// Ping refreshes the heartbeat for an instance and, if the refresh
// reported a status change, enqueues an asynchronous change notification.
func (f *Facade) Ping(ctx context.Context, inst model.ServiceInstance) error {
	if err := validateAddr(inst.Addr); err != nil {
		return err
	}
	st, err := f.resolve(inst.GroupTab)
	if err != nil {
		return err
	}
	notify, err := f.engine.Refresh(ctx, st, inst.GroupTab, inst)
	if err != nil {
		return rpcerr.Wrap(rpcerr.KindStoreOp, "refresh", err)
	}
	if notify {
		f.propagator.PushChange(inst.GroupTab, inst)
	}
	return nil
}

// Check verifies the caller's cached watch_list against the authoritative
// store state, returning the corrected watch list whenever it doesn't
// pass.
func (f *Facade) Check(ctx context.Context, inst model.ServiceInstance, claimed []WatchEntry) (passed bool, corrected []WatchEntry, err error) {
	if err := validateAddr(inst.Addr); err != nil {
		return false, nil, err
	}
	st, err := f.resolve(inst.GroupTab)
	if err != nil {
		return false, nil, err
	}

	passed = true
	var authoritative []WatchEntry
	for _, entry := range claimed {
		live, err := f.buildWatchEntry(ctx, st, inst.GroupTab, entry.ServiceType)
		if err != nil {
			return false, nil, err
		}
		authoritative = append(authoritative, live)
		if !watchEntryMatches(entry, live) {
			passed = false
		}
	}

	if passed {
		return true, nil, nil
	}
	return false, authoritative, nil
}

func watchEntryMatches(claimed, authoritative WatchEntry) bool {
	if len(claimed.Services) != len(authoritative.Services) {
		return false
	}
	byAddr := make(map[string]ServiceInfo, len(authoritative.Services))
	for _, s := range authoritative.Services {
		byAddr[s.Addr] = s
	}
	for _, c := range claimed.Services {
		a, ok := byAddr[c.Addr]
		if !ok {
			return false
		}
		if c.Status != a.Status || c.Semver != a.Semver ||
			c.ServiceWeight != a.ServiceWeight || c.ConnectMode != a.ConnectMode ||
			c.GroupTab != a.GroupTab {
			return false
		}
	}
	return true
}

func (f *Facade) buildWatchList(ctx context.Context, st store.Store, group string, rely []model.RelyEntry) ([]WatchEntry, error) {
	seen := make(map[int]bool)
	var out []WatchEntry
	for _, r := range rely {
		if seen[r.Type] {
			continue
		}
		seen[r.Type] = true
		entry, err := f.buildWatchEntry(ctx, st, group, r.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (f *Facade) buildWatchEntry(ctx context.Context, st store.Store, group string, serviceType int) (WatchEntry, error) {
	addrs, err := st.SetScanAll(ctx, keys.ServiceTypeAddrList(group, serviceType))
	if err != nil {
		return WatchEntry{}, rpcerr.Wrap(rpcerr.KindStoreOp, "scan_type_addrs", err)
	}
	entry := WatchEntry{ServiceType: serviceType}
	if len(addrs) == 0 {
		return entry, nil
	}
	raw, err := st.HashMGet(ctx, keys.ServiceInfo(group), addrs)
	if err != nil {
		return WatchEntry{}, rpcerr.Wrap(rpcerr.KindStoreOp, "hmget_service_info", err)
	}
	for _, addr := range addrs {
		data, ok := raw[addr]
		if !ok {
			continue
		}
		inst, err := model.ParseRecord([]byte(data))
		if err != nil {
			f.logger.Warn("skipping unparseable record in watch list", "group", group, "addr", addr, "error", err)
			continue
		}
		if inst.Status != model.StatusOnline && inst.Status != model.StatusRegister {
			continue
		}
		entry.Services = append(entry.Services, toWire(inst))
	}
	return entry, nil
}
