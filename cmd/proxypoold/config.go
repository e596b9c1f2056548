package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	ppool "proxypool"
)

// fileConfig is the on-disk TOML shape: plain structs with
// `toml:"kebab-case"` tags, loaded once at startup and translated into
// the library's own Config.
type fileConfig struct {
	Validator    validatorConfig    `toml:"validator"`
	Scorer       scorerConfig       `toml:"scorer"`
	Pools        poolsConfig        `toml:"pools"`
	Revalidate   revalidateConfig   `toml:"revalidate"`
	Blacklist    blacklistConfig    `toml:"blacklist"`
	Lease        leaseConfig        `toml:"lease"`
	Orchestrator orchestratorConfig `toml:"orchestrator"`
	Echo         echoConfig         `toml:"echo"`
	ShardCount   int                `toml:"shard-count"`
	Store        storeConfig        `toml:"store"`
	GeoDBPath    string             `toml:"geo-db-path"`

	Fetchers map[string]fetcherConfig `toml:"fetchers"`
}

type validatorConfig struct {
	MaxConcurrent int `toml:"max-concurrent"`
	TimeoutS      int `toml:"timeout-s"`
	RetryCount    int `toml:"retry-count"`
	RetryDelayS   int `toml:"retry-delay-s"`
	BatchSize     int `toml:"batch-size"`
	ChunkPauseS   int `toml:"chunk-pause-s"`
}

type scorerConfig struct {
	ThetaHot  float64 `toml:"theta-hot"`
	ThetaWarm float64 `toml:"theta-warm"`
	ThetaCold float64 `toml:"theta-cold"`
	TauHotMs  int     `toml:"tau-hot-ms"`
	TauWarmMs int     `toml:"tau-warm-ms"`
}

type poolsConfig struct {
	HotMax       int `toml:"hot-max"`
	WarmMax      int `toml:"warm-max"`
	ColdMax      int `toml:"cold-max"`
	BlacklistMax int `toml:"blacklist-max"`
}

type revalidateConfig struct {
	HotH       int `toml:"hot-h"`
	WarmH      int `toml:"warm-h"`
	ColdH      int `toml:"cold-h"`
	BlacklistD int `toml:"blacklist-d"`
}

type blacklistConfig struct {
	ConsecutiveFailuresTrigger int `toml:"consecutive-failures-trigger"`
	PurgeAfterDays             int `toml:"purge-after-days"`
}

type leaseConfig struct {
	DefaultTTLS      int `toml:"default-ttl-s"`
	SelectionRetries int `toml:"selection-retries"`
}

type orchestratorConfig struct {
	FetchIntervalH     int `toml:"fetch-interval-h"`
	CleanupIntervalH   int `toml:"cleanup-interval-h"`
	SaveIntervalMin    int `toml:"save-interval-min"`
	ShutdownDeadlineS  int `toml:"shutdown-deadline-s"`
	ErrorRetryMinS     int `toml:"error-retry-min-s"`
	ErrorRetryMaxS     int `toml:"error-retry-max-s"`
}

type echoConfig struct {
	EchoIPHTTP  []string `toml:"echo-ip-http"`
	EchoIPHTTPS []string `toml:"echo-ip-https"`
	HeadersEcho []string `toml:"headers-echo"`
}

type storeConfig struct {
	DSN        string `toml:"dsn"`
	BackupPath string `toml:"backup-path"`
}

type fetcherConfig struct {
	Kind        string   `toml:"kind"`
	Enabled     bool     `toml:"enabled"`
	Path        string   `toml:"path"`
	URLs        []string `toml:"urls"`
	Protocols   []string `toml:"protocols"`
	BearerToken string   `toml:"bearer-token"`
	APIKey      string   `toml:"api-key"`
	APISecret   string   `toml:"api-secret"`
	Query       string   `toml:"query"`
	JitterMinMs int      `toml:"jitter-min-ms"`
	JitterMaxMs int      `toml:"jitter-max-ms"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return fc, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fc, nil
}

// toLibraryConfig translates the on-disk TOML shape into ppool.Config,
// starting from the library's own documented defaults and overriding
// only fields the file actually sets.
func (fc fileConfig) toLibraryConfig() ppool.Config {
	cfg := ppool.DefaultConfig()

	if fc.Validator.MaxConcurrent > 0 {
		cfg.Validator.MaxConcurrent = fc.Validator.MaxConcurrent
	}
	if fc.Validator.TimeoutS > 0 {
		cfg.Validator.Timeout = time.Duration(fc.Validator.TimeoutS) * time.Second
	}
	if fc.Validator.RetryCount > 0 {
		cfg.Validator.RetryCount = fc.Validator.RetryCount
	}
	if fc.Validator.RetryDelayS > 0 {
		cfg.Validator.RetryDelay = time.Duration(fc.Validator.RetryDelayS) * time.Second
	}
	if fc.Validator.BatchSize > 0 {
		cfg.Validator.BatchSize = fc.Validator.BatchSize
	}
	if fc.Validator.ChunkPauseS > 0 {
		cfg.Validator.ChunkPause = time.Duration(fc.Validator.ChunkPauseS) * time.Second
	}

	if fc.Scorer.ThetaHot > 0 {
		cfg.Scorer.ThetaHot = fc.Scorer.ThetaHot
	}
	if fc.Scorer.ThetaWarm > 0 {
		cfg.Scorer.ThetaWarm = fc.Scorer.ThetaWarm
	}
	if fc.Scorer.ThetaCold > 0 {
		cfg.Scorer.ThetaCold = fc.Scorer.ThetaCold
	}
	if fc.Scorer.TauHotMs > 0 {
		cfg.Scorer.TauHotMs = fc.Scorer.TauHotMs
	}
	if fc.Scorer.TauWarmMs > 0 {
		cfg.Scorer.TauWarmMs = fc.Scorer.TauWarmMs
	}

	if fc.Pools.HotMax > 0 {
		cfg.Pools.HotMax = fc.Pools.HotMax
	}
	if fc.Pools.WarmMax > 0 {
		cfg.Pools.WarmMax = fc.Pools.WarmMax
	}
	if fc.Pools.ColdMax > 0 {
		cfg.Pools.ColdMax = fc.Pools.ColdMax
	}
	if fc.Pools.BlacklistMax > 0 {
		cfg.Pools.BlacklistMax = fc.Pools.BlacklistMax
	}

	if fc.Revalidate.HotH > 0 {
		cfg.Revalidate.Hot = time.Duration(fc.Revalidate.HotH) * time.Hour
	}
	if fc.Revalidate.WarmH > 0 {
		cfg.Revalidate.Warm = time.Duration(fc.Revalidate.WarmH) * time.Hour
	}
	if fc.Revalidate.ColdH > 0 {
		cfg.Revalidate.Cold = time.Duration(fc.Revalidate.ColdH) * time.Hour
	}
	if fc.Revalidate.BlacklistD > 0 {
		cfg.Revalidate.Blacklist = time.Duration(fc.Revalidate.BlacklistD) * 24 * time.Hour
	}

	if fc.Blacklist.ConsecutiveFailuresTrigger > 0 {
		cfg.Blacklist.ConsecutiveFailuresTrigger = fc.Blacklist.ConsecutiveFailuresTrigger
	}
	if fc.Blacklist.PurgeAfterDays > 0 {
		cfg.Blacklist.PurgeAfter = time.Duration(fc.Blacklist.PurgeAfterDays) * 24 * time.Hour
	}

	if fc.Lease.DefaultTTLS > 0 {
		cfg.Lease.DefaultTTL = time.Duration(fc.Lease.DefaultTTLS) * time.Second
	}
	if fc.Lease.SelectionRetries > 0 {
		cfg.Lease.SelectionRetries = fc.Lease.SelectionRetries
	}

	if fc.Orchestrator.FetchIntervalH > 0 {
		cfg.Orchestrator.FetchInterval = time.Duration(fc.Orchestrator.FetchIntervalH) * time.Hour
	}
	if fc.Orchestrator.CleanupIntervalH > 0 {
		cfg.Orchestrator.CleanupInterval = time.Duration(fc.Orchestrator.CleanupIntervalH) * time.Hour
	}
	if fc.Orchestrator.SaveIntervalMin > 0 {
		cfg.Orchestrator.SaveInterval = time.Duration(fc.Orchestrator.SaveIntervalMin) * time.Minute
	}
	if fc.Orchestrator.ShutdownDeadlineS > 0 {
		cfg.Orchestrator.ShutdownDeadline = time.Duration(fc.Orchestrator.ShutdownDeadlineS) * time.Second
	}
	if fc.Orchestrator.ErrorRetryMinS > 0 {
		cfg.Orchestrator.ErrorRetryMin = time.Duration(fc.Orchestrator.ErrorRetryMinS) * time.Second
	}
	if fc.Orchestrator.ErrorRetryMaxS > 0 {
		cfg.Orchestrator.ErrorRetryMax = time.Duration(fc.Orchestrator.ErrorRetryMaxS) * time.Second
	}

	if len(fc.Echo.EchoIPHTTP) > 0 {
		cfg.EchoEndpoints.EchoIPHTTP = fc.Echo.EchoIPHTTP
	}
	if len(fc.Echo.EchoIPHTTPS) > 0 {
		cfg.EchoEndpoints.EchoIPHTTPS = fc.Echo.EchoIPHTTPS
	}
	if len(fc.Echo.HeadersEcho) > 0 {
		cfg.EchoEndpoints.HeadersEcho = fc.Echo.HeadersEcho
	}

	if fc.ShardCount > 0 {
		cfg.ShardCount = fc.ShardCount
	}

	for name, f := range fc.Fetchers {
		fcfg := ppool.FetcherConfig{
			Name:        name,
			Kind:        f.Kind,
			Enabled:     f.Enabled,
			Path:        f.Path,
			URLs:        f.URLs,
			BearerToken: f.BearerToken,
			APIKey:      f.APIKey,
			APISecret:   f.APISecret,
			Query:       f.Query,
			JitterMin:   time.Duration(f.JitterMinMs) * time.Millisecond,
			JitterMax:   time.Duration(f.JitterMaxMs) * time.Millisecond,
		}
		for _, p := range f.Protocols {
			if proto, ok := ppool.ParseProtocol(p); ok {
				fcfg.Protocols = append(fcfg.Protocols, proto)
			}
		}
		cfg.Fetchers = append(cfg.Fetchers, fcfg)
	}

	return cfg
}
