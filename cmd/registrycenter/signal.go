package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jasonwang1/registercenter/internal/config"
)

// shutdownGrace bounds how long main waits for the RPC and metrics servers
// to drain in-flight requests after an INT/QUIT/TERM before the process
// exits.
const shutdownGrace = 3 * time.Second

const reloadDebounceWindow = 1 * time.Second

// reloadMetrics mirrors the teacher's SignalPrometheusMetrics shape,
// renamed to this process's own config-reload concern.
type reloadMetrics struct {
	attemptsTotal   *prometheus.CounterVec
	reloadDuration  prometheus.Histogram
	lastSuccessUnix prometheus.Gauge
	lastFailureUnix prometheus.Gauge
}

func newReloadMetrics(namespace string) *reloadMetrics {
	return &reloadMetrics{
		attemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "config", Name: "reload_total",
			Help: "Configuration reload attempts via SIGHUP, by outcome.",
		}, []string{"status"}),
		reloadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "config", Name: "reload_duration_seconds",
			Help: "Duration of SIGHUP-triggered configuration reloads.",
		}),
		lastSuccessUnix: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "config", Name: "reload_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful SIGHUP reload.",
		}),
		lastFailureUnix: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "config", Name: "reload_last_failure_timestamp_seconds",
			Help: "Unix timestamp of the last failed SIGHUP reload.",
		}),
	}
}

// signalHandler listens for SIGHUP (debounced config reload, adapted from
// the teacher's cmd/server/signal.go goroutine+debounce+metrics pattern)
// and for INT/QUIT/TERM (graceful shutdown with a drain grace window).
type signalHandler struct {
	configPath string
	store      *config.Store
	logger     *slog.Logger
	metrics    *reloadMetrics
	rebind     func(cfg *config.Config) error

	lastReload atomic.Value // time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reloadSig   chan os.Signal
	shutdownSig chan os.Signal
	reloadChan  chan struct{}
}

// newSignalHandler builds a signalHandler. rebind, if non-nil, is invoked
// with the freshly reloaded config after every successful SIGHUP so the
// caller can re-bind anything beyond cfgStore's snapshot (the store
// manager's redis_list/group_list, in particular).
func newSignalHandler(configPath string, store *config.Store, logger *slog.Logger, metrics *reloadMetrics, rebind func(cfg *config.Config) error) *signalHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &signalHandler{
		configPath:  configPath,
		store:       store,
		logger:      logger,
		metrics:     metrics,
		rebind:      rebind,
		ctx:         ctx,
		cancel:      cancel,
		reloadSig:   make(chan os.Signal, 1),
		shutdownSig: make(chan os.Signal, 1),
		reloadChan:  make(chan struct{}, 10),
	}
}

// start registers signal handlers and spawns the listener/reload
// goroutines. shutdown is invoked (once) when INT/QUIT/TERM arrives.
func (h *signalHandler) start(shutdown func()) {
	signal.Notify(h.reloadSig, syscall.SIGHUP)
	signal.Notify(h.shutdownSig, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	h.wg.Add(1)
	go h.reloadListener()

	h.wg.Add(1)
	go h.reloadWorker()

	h.wg.Add(1)
	go h.shutdownListener(shutdown)
}

func (h *signalHandler) stop() {
	signal.Stop(h.reloadSig)
	signal.Stop(h.shutdownSig)
	h.cancel()
	h.wg.Wait()
}

func (h *signalHandler) reloadListener() {
	defer h.wg.Done()
	for {
		select {
		case _, ok := <-h.reloadSig:
			if !ok {
				return
			}
			select {
			case h.reloadChan <- struct{}{}:
			default:
				h.logger.Warn("reload already queued, dropping duplicate SIGHUP")
			}
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *signalHandler) reloadWorker() {
	defer h.wg.Done()
	for {
		select {
		case <-h.reloadChan:
			if h.debounced() {
				h.logger.Debug("reload debounced")
				continue
			}
			h.lastReload.Store(time.Now())
			h.reload()
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *signalHandler) debounced() bool {
	v := h.lastReload.Load()
	if v == nil {
		return false
	}
	return time.Since(v.(time.Time)) < reloadDebounceWindow
}

func (h *signalHandler) reload() {
	start := time.Now()
	cfg, err := h.store.ReloadFrom(h.configPath)
	duration := time.Since(start)
	h.metrics.reloadDuration.Observe(duration.Seconds())
	if err != nil {
		h.metrics.attemptsTotal.WithLabelValues("failure").Inc()
		h.metrics.lastFailureUnix.Set(float64(time.Now().Unix()))
		h.logger.Error("config reload failed", "error", err, "path", h.configPath)
		return
	}
	h.metrics.attemptsTotal.WithLabelValues("success").Inc()
	h.metrics.lastSuccessUnix.Set(float64(time.Now().Unix()))
	h.logger.Info("config reloaded", "path", h.configPath, "groups", len(cfg.GroupList), "redis_connections", len(cfg.RedisList))

	if h.rebind != nil {
		if err := h.rebind(cfg); err != nil {
			h.logger.Error("store manager rebind failed", "error", err)
		}
	}
}

func (h *signalHandler) shutdownListener(shutdown func()) {
	defer h.wg.Done()
	select {
	case sig, ok := <-h.shutdownSig:
		if !ok {
			return
		}
		h.logger.Info("received shutdown signal", "signal", sig.String(), "grace", shutdownGrace)
		shutdown()
	case <-h.ctx.Done():
	}
}
