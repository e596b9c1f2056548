package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	ppool "proxypool"
)

type options struct {
	logLevel   string
	metricsAddr string
	version    bool
}

// onClose is a package-level shutdown-hook slice: callbacks run, in
// order, once during shutdown.
var onClose []func()

func main() {
	var opt options
	cmd := &cobra.Command{
		Use:   "proxypoold <config.toml>",
		Short: "Harvests, validates, scores and serves a tiered pool of proxy servers",
		Long: `proxypoold fetches candidate proxy servers from configured sources,
validates their reachability and anonymity, scores and tiers them,
and serves them out to callers through a leased acquire/release API.`,
		Example: `  proxypoold config.toml`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opt, args[0])
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVarP(&opt.logLevel, "log-level", "l", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opt.metricsAddr, "metrics-addr", ":9090", "Prometheus /metrics listen address, empty to disable")
	cmd.Flags().BoolVarP(&opt.version, "version", "v", false, "Prints version string")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(opt options, configPath string) error {
	if opt.version {
		fmt.Println("proxypoold (development build)")
		return nil
	}

	level, err := parseLogLevel(opt.logLevel)
	if err != nil {
		return err
	}
	ppool.Log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	fc, err := loadFileConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := fc.toLibraryConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := ppool.NewMetrics(reg)

	if opt.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: opt.metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				ppool.Log.Error("metrics server stopped", "error", err)
			}
		}()
		onClose = append(onClose, func() { srv.Close() })
	}

	registry := ppool.NewRegistry(metrics)
	for _, fcfg := range cfg.Fetchers {
		f, err := instantiateFetcher(fcfg)
		if err != nil {
			return fmt.Errorf("fetcher %q: %w", fcfg.Name, err)
		}
		registry.Register(f)
	}

	var geo *ppool.GeoLookup
	if fc.GeoDBPath != "" {
		geo, err = ppool.OpenGeoLookup(fc.GeoDBPath)
		if err != nil {
			ppool.Log.Warn("geolocation database unavailable, continuing without it", "error", err)
			geo = nil
		} else {
			onClose = append(onClose, func() { geo.Close() })
		}
	}

	validator := ppool.NewValidator(cfg.Validator, cfg.EchoEndpoints, metrics, geo)
	scorer := ppool.NewScorer(cfg.Scorer)
	pool := ppool.NewManager(scorer, cfg.Pools, cfg.Revalidate, cfg.Blacklist, cfg.Lease, cfg.ShardCount, metrics)

	var store ppool.Store
	if fc.Store.DSN != "" {
		sqlStore, err := ppool.NewSQLStore(ppool.SQLStoreOptions{DSN: fc.Store.DSN})
		if err != nil {
			return fmt.Errorf("opening durable store: %w", err)
		}
		store = sqlStore
		onClose = append(onClose, func() { sqlStore.Close() })
	}

	orch := ppool.NewOrchestrator(cfg.Orchestrator, registry, validator, pool, store, metrics, fc.Store.BackupPath)

	if watcher, err := watchConfigReload(configPath, pool); err != nil {
		ppool.Log.Warn("config hot-reload watcher unavailable", "error", err)
	} else if watcher != nil {
		onClose = append(onClose, func() { watcher.Close() })
	}

	if err := orch.Start(); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	<-sig

	ppool.Log.Info("shutting down")
	orch.Stop()
	for _, f := range onClose {
		f()
	}
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// watchConfigReload watches configPath for changes and, on write,
// re-reads the scorer thresholds and swaps a new scorer into the
// running Manager. Pool capacities, fetcher settings and every other
// field are not reloaded; they keep their startup values.
func watchConfigReload(configPath string, pool *ppool.Manager) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				fc, err := loadFileConfig(configPath)
				if err != nil {
					ppool.Log.Warn("config reload failed", "error", err)
					continue
				}
				scorer, err := safeNewScorer(fc.toLibraryConfig().Scorer)
				if err != nil {
					ppool.Log.Warn("reloaded scorer thresholds invalid, keeping previous", "error", err)
					continue
				}
				pool.SetScorer(scorer)
				ppool.Log.Info("reloaded scorer thresholds from config")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				ppool.Log.Warn("config watcher error", "error", err)
			}
		}
	}()
	return watcher, nil
}

func safeNewScorer(t ppool.ScorerThresholds) (s *ppool.Scorer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return ppool.NewScorer(t), nil
}
