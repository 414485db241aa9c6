// Package main is the entry point for the registry coordination plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jasonwang1/registercenter/internal/alert"
	"github.com/jasonwang1/registercenter/internal/alert/webhook"
	"github.com/jasonwang1/registercenter/internal/config"
	"github.com/jasonwang1/registercenter/internal/dependency"
	"github.com/jasonwang1/registercenter/internal/engine"
	"github.com/jasonwang1/registercenter/internal/liveness"
	"github.com/jasonwang1/registercenter/internal/lock"
	"github.com/jasonwang1/registercenter/internal/model"
	"github.com/jasonwang1/registercenter/internal/propagate"
	"github.com/jasonwang1/registercenter/internal/rpc"
	rpcclient "github.com/jasonwang1/registercenter/internal/rpc/client"
	rpcserver "github.com/jasonwang1/registercenter/internal/rpc/server"
	"github.com/jasonwang1/registercenter/internal/store"
	"github.com/jasonwang1/registercenter/pkg/logger"
	"github.com/jasonwang1/registercenter/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	serviceName    = "registrycenter"
	serviceVersion = "1.0.0"
)

// drainTick is how often the change and alert queues are drained, matching
// UnifiedClient's own tight poll loop around its notify queues.
const drainTick = 10 * time.Millisecond

func main() {
	configPath := flag.String("config", "registrycenter.yaml", "Path to the YAML configuration file")
	bindIP := flag.String("bind-ip", "", "Override server.bind_ip from the config file")
	bindPort := flag.Int("bind-port", 0, "Override server.bind_port from the config file")
	niceName := flag.String("nicename", "", "Override server.nice_name from the config file")
	processName := flag.String("process-name", "", "Override server.process_name from the config file")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}
	if *showHelp {
		fmt.Printf("registrycenter - service registry and coordination plane\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "registrycenter: %v\n", err)
		os.Exit(1)
	}
	if *bindIP != "" {
		cfg.Server.BindIP = *bindIP
	}
	if *bindPort != 0 {
		cfg.Server.BindPort = *bindPort
	}
	if *niceName != "" {
		cfg.Server.NiceName = *niceName
	}
	if *processName != "" {
		cfg.Server.ProcessName = *processName
	}
	cfgStore := config.NewStore(cfg)

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		Filename:   cfg.Log.Filename,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	slog.SetDefault(log)
	log.Info("starting registrycenter", "version", serviceVersion, "config", *configPath)

	reg := metrics.DefaultRegistry()

	storeMgr, err := store.NewManager(toStoreConns(cfg.RedisList), cfg.GroupMap(), reg.Store())
	if err != nil {
		log.Error("failed to initialize store manager", "error", err)
		os.Exit(1)
	}
	defer storeMgr.Close()

	lockMgr := lock.NewManager(log, reg.Lock())
	eng := engine.New(lockMgr, log, reg.Engine())

	var notifier alert.Notifier = alert.Noop{}
	if cfg.LarkWebHook != "" {
		notifier = webhook.New(cfg.LarkWebHook, log)
	}

	selfAddr := fmt.Sprintf("%s:%d", cfg.Server.BindIP, cfg.Server.BindPort)
	outbound := rpcclient.New(selfAddr)

	propagator := propagate.New(storeMgr, eng, outbound, notifier, log, reg.Propagate())

	onEvict := func(group string, inst model.ServiceInstance) {
		propagator.PushChange(group, inst)
		propagator.PushAlert(group, inst)
	}
	livenessMon := liveness.New(storeMgr, eng, onEvict, log, reg.Liveness())

	facade := rpc.New(storeMgr, eng, propagator, notifier, log)
	rpcSrv := rpcserver.New(facade, log)

	dependencyMon := dependency.New(storeMgr, notifier, func() bool { return cfgStore.Current().RelyWarningSwitch }, log, reg.Dependency())

	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	go livenessMon.Run(ctx)
	go dependencyMon.Run(ctx)
	go runDrainLoop(ctx, propagator)

	httpServer := &http.Server{
		Addr:    selfAddr,
		Handler: rpcSrv.Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("rpc server listening", "addr", selfAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindIP, cfg.Metrics.Port)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			log.Info("metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	reloadMetrics := newReloadMetrics(serviceName)
	rebindStores := func(cfg *config.Config) error {
		return storeMgr.Rebind(toStoreConns(cfg.RedisList), cfg.GroupMap())
	}
	sigHandler := newSignalHandler(*configPath, cfgStore, log, reloadMetrics, rebindStores)
	shutdownOnce := make(chan struct{})
	sigHandler.start(func() {
		close(shutdownOnce)
	})
	defer sigHandler.stop()

	select {
	case err := <-serverErr:
		log.Error("rpc server failed", "error", err)
	case <-shutdownOnce:
		log.Info("shutting down")
	}

	cancelBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("rpc server shutdown failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown failed", "error", err)
		}
	}
	log.Info("registrycenter exited")
}

func toStoreConns(conns []config.RedisConn) []store.RedisConn {
	out := make([]store.RedisConn, 0, len(conns))
	for _, c := range conns {
		out = append(out, store.RedisConn{
			Name:         c.Name,
			Addr:         c.Addr,
			Password:     c.Password,
			DB:           c.DB,
			PoolSize:     c.PoolSize,
			MinIdleConns: c.MinIdleConns,
			DialTimeout:  c.DialTimeout,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
		})
	}
	return out
}

func runDrainLoop(ctx context.Context, p *propagate.Propagator) {
	ticker := time.NewTicker(drainTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.DrainChanges(ctx)
			p.DrainAlerts(ctx)
		}
	}
}
