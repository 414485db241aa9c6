// Package propagate implements the change propagator: the changeQ/alertQ
// drain loops and the Hello-then-Notify fan-out algorithm, grounded on
// UnifiedClient::PushChangeNotifyQueue / ChangeNotifyQueueData /
// ChangeNotify and PushLarkNotifyQueue / LarkNotifyQueueData.
package propagate

import (
	"context"
	"log/slog"

	"github.com/jasonwang1/registercenter/internal/alert"
	"github.com/jasonwang1/registercenter/internal/engine"
	"github.com/jasonwang1/registercenter/internal/keys"
	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/queue"
	"github.com/jasonwang1/registercenter/internal/store"
	"github.com/jasonwang1/registercenter/pkg/metrics"
)

// OutboundClient issues the direct Hello/Notify RPCs the fan-out algorithm
// sends to origin and dependent instances.
type OutboundClient interface {
	Hello(ctx context.Context, addr string) error
	Notify(ctx context.Context, addr string, changed model.ServiceInstance) error
}

// ChangeEvent is one entry in the change queue: a service instance that
// just had a status-notify-worthy refresh within a group.
type ChangeEvent struct {
	Group    string
	Instance model.ServiceInstance
}

const drainBatchSize = 10

// Propagator drains queued change/alert events and performs the fan-out
// and webhook delivery they require.
type Propagator struct {
	stores  *store.Manager
	engine  *engine.Engine
	client  OutboundClient
	alerter alert.Notifier
	logger  *slog.Logger
	metrics *metrics.PropagateMetrics

	changeQ *queue.Unbounded[ChangeEvent]
	alertQ  *queue.Unbounded[ChangeEvent]
}

// New builds a Propagator. A nil logger falls back to slog.Default; a nil
// metrics disables instrumentation.
func New(stores *store.Manager, eng *engine.Engine, client OutboundClient, alerter alert.Notifier, logger *slog.Logger, m *metrics.PropagateMetrics) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	if alerter == nil {
		alerter = alert.Noop{}
	}
	return &Propagator{
		stores:  stores,
		engine:  eng,
		client:  client,
		alerter: alerter,
		logger:  logger,
		metrics: m,
		changeQ: queue.New[ChangeEvent](),
		alertQ:  queue.New[ChangeEvent](),
	}
}

// PushChange enqueues an instance for asynchronous fan-out notification.
func (p *Propagator) PushChange(group string, inst model.ServiceInstance) {
	p.changeQ.Push(ChangeEvent{Group: group, Instance: inst})
	p.reportQueueDepths()
}

// PushAlert enqueues an instance for asynchronous lifecycle-alert delivery.
func (p *Propagator) PushAlert(group string, inst model.ServiceInstance) {
	p.alertQ.Push(ChangeEvent{Group: group, Instance: inst})
	p.reportQueueDepths()
}

func (p *Propagator) reportQueueDepths() {
	if p.metrics == nil {
		return
	}
	p.metrics.ChangeQueueDepth.Set(float64(p.changeQ.Len()))
	p.metrics.AlertQueueDepth.Set(float64(p.alertQ.Len()))
}

// ChangeQueueLen reports the current change-queue backlog.
func (p *Propagator) ChangeQueueLen() int { return p.changeQ.Len() }

// AlertQueueLen reports the current alert-queue backlog.
func (p *Propagator) AlertQueueLen() int { return p.alertQ.Len() }

// DrainChanges drains up to drainBatchSize queued change events and runs
// their fan-out. Called on a 10ms tick by the composition root.
func (p *Propagator) DrainChanges(ctx context.Context) {
	events := p.changeQ.PopUpTo(drainBatchSize)
	if len(events) > 0 {
		p.reportQueueDepths()
	}
	for _, ev := range events {
		if err := p.ChangeNotify(ctx, ev.Group, ev.Instance); err != nil {
			p.logger.Warn("change fan-out failed", "group", ev.Group, "addr", ev.Instance.Addr, "error", err)
		}
	}
}

// DrainAlerts drains up to drainBatchSize queued alert events and posts
// them to the outbound alerter. Called on a 10ms tick by the composition
// root.
func (p *Propagator) DrainAlerts(ctx context.Context) {
	events := p.alertQ.PopUpTo(drainBatchSize)
	if len(events) > 0 {
		p.reportQueueDepths()
	}
	for _, ev := range events {
		if err := p.alerter.NotifyChange(ctx, ev.Instance); err != nil {
			p.logger.Warn("lifecycle alert delivery failed", "group", ev.Group, "addr", ev.Instance.Addr, "error", err)
		}
	}
}

// ChangeNotify runs the Hello-then-Notify fan-out for a changed instance:
// if the origin is directly reachable and live, it is Hello-probed first;
// a failed origin probe evicts the origin and aborts the fan-out. Every
// live dependent of the instance's service type is then Hello-probed and,
// only if that probe succeeds, Notified of the change. It is also called
// synchronously (not through the queue) by the RPC facade's Offline
// handler.
func (p *Propagator) ChangeNotify(ctx context.Context, group string, changed model.ServiceInstance) error {
	st, err := p.stores.ForGroup(group)
	if err != nil {
		return err
	}

	if changed.ConnectMode.Pingable() && (changed.Status == model.StatusOnline || changed.Status == model.StatusRegister) {
		if err := p.client.Hello(ctx, changed.Addr); err != nil {
			p.logger.Warn("origin hello probe failed, evicting", "group", group, "addr", changed.Addr, "error", err)
			if p.metrics != nil {
				p.metrics.HelloProbeFailures.Inc()
			}
			if _, _, evictErr := p.engine.Evict(ctx, st, group, changed.Addr); evictErr != nil {
				p.logger.Warn("origin eviction failed", "group", group, "addr", changed.Addr, "error", evictErr)
			} else if p.metrics != nil {
				p.metrics.OriginEvictionsTotal.Inc()
			}
			return err
		}
	}

	dependents, err := p.loadDependents(ctx, st, group, changed.ServiceType)
	if err != nil {
		return err
	}

	for _, dep := range dependents {
		if dep.Status != model.StatusOnline && dep.Status != model.StatusRegister {
			continue
		}
		if err := p.client.Hello(ctx, dep.Addr); err != nil {
			p.logger.Info("dependent hello probe failed, skipping notify", "group", group, "addr", dep.Addr, "error", err)
			if p.metrics != nil {
				p.metrics.HelloProbeFailures.Inc()
				p.metrics.FanOutTotal.WithLabelValues("hello_failed").Inc()
			}
			continue
		}
		if err := p.client.Notify(ctx, dep.Addr, changed); err != nil {
			p.logger.Warn("dependent notify failed", "group", group, "addr", dep.Addr, "error", err)
			if p.metrics != nil {
				p.metrics.FanOutTotal.WithLabelValues("notify_failed").Inc()
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.FanOutTotal.WithLabelValues("notified").Inc()
		}
	}
	return nil
}

func (p *Propagator) loadDependents(ctx context.Context, st store.Store, group string, serviceType int) ([]model.ServiceInstance, error) {
	addrs, err := st.SetScanAll(ctx, keys.ServiceTypeLevelAddrList(group, serviceType))
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, nil
	}
	raw, err := st.HashMGet(ctx, keys.ServiceInfo(group), addrs)
	if err != nil {
		return nil, err
	}
	out := make([]model.ServiceInstance, 0, len(raw))
	for addr, data := range raw {
		inst, err := model.ParseRecord([]byte(data))
		if err != nil {
			p.logger.Warn("skipping unparseable dependent record", "group", group, "addr", addr, "error", err)
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}
