package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/polyhft/tradeengine/internal/config"
	"github.com/polyhft/tradeengine/internal/eventlog"
	"github.com/polyhft/tradeengine/internal/logging"
	"github.com/polyhft/tradeengine/internal/market"
	"github.com/polyhft/tradeengine/internal/orchestrator"
	"github.com/polyhft/tradeengine/internal/replay"
	"github.com/polyhft/tradeengine/internal/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(os.Args[2:])
	case "capture":
		err = captureCmd(os.Args[2:])
	case "backtest":
		err = backtestCmd(os.Args[2:])
	case "status":
		err = statusCmd(os.Args[2:])
	case "config":
		err = configCmd(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tradeengine <run|capture|backtest|status|config> [flags]")
}

func loadConfig(path, rollout string) (config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Printf("warning: config file: %v, using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	if rollout != "" {
		if err := config.ApplyRolloutPhase(&cfg, rollout); err != nil {
			return cfg, fmt.Errorf("rollout phase: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// runCmd starts the full trading engine: spot/depth feeds, detectors,
// sizing, risk, and (paper or live) execution, wired by
// orchestrator.New and driven until a termination signal arrives.
func runCmd(args []string) error {
	fset := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fset.String("config", "config.yaml", "path to config file")
	dryRun := fset.Bool("dry-run", false, "force dry-run mode regardless of config")
	verbose := fset.Bool("verbose", false, "log at debug level regardless of config")
	rollout := fset.String("rollout", "", "apply a staged rollout phase (paper, shadow, live-small, live)")
	catalogURL := fset.String("catalog-url", "https://gamma-api.polymarket.com", "market catalog base URL")
	spotURL := fset.String("spot-url", "wss://stream.binance.com:9443/ws", "spot price feed websocket URL")
	depthURL := fset.String("depth-url", "wss://ws-subscriptions-clob.polymarket.com/ws", "order book depth feed websocket URL")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath, *rollout)
	if err != nil {
		return err
	}
	if *dryRun {
		cfg.DryRun = true
	}
	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}

	logger, err := logging.New(level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Infow("tradeengine starting", "dry_run", cfg.DryRun, "asset", cfg.Market.Asset)

	catalog := market.NewHTTPCatalogClient(*catalogURL)
	spotCfg := transport.DefaultConfig(*spotURL)
	depthCfg := transport.DefaultConfig(*depthURL)

	engine := orchestrator.New(cfg, logger, catalog, spotCfg, depthCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return engine.Run(ctx)
}

// captureCmd runs the same engine in a capture-only configuration:
// dry-run forced on, execution disabled downstream by the risk gate,
// recording forced on so the feeds' raw events land under --output.
func captureCmd(args []string) error {
	fset := flag.NewFlagSet("capture", flag.ExitOnError)
	cfgPath := fset.String("config", "config.yaml", "path to config file")
	symbol := fset.String("symbol", "BTCUSDT", "spot symbol to capture")
	output := fset.String("output", "./data", "directory to write captured event logs to")
	bufferSize := fset.Int("buffer-size", 0, "recorder buffer size override (0 = use config default)")
	flushInterval := fset.Duration("flush-interval", 0, "recorder flush interval override (0 = use config default)")
	rotationInterval := fset.Duration("rotation-interval", 0, "recorder rotation interval override (0 = use config default)")
	spotURL := fset.String("spot-url", "wss://stream.binance.com:9443/ws", "spot price feed websocket URL")
	depthURL := fset.String("depth-url", "wss://ws-subscriptions-clob.polymarket.com/ws", "order book depth feed websocket URL")
	catalogURL := fset.String("catalog-url", "https://gamma-api.polymarket.com", "market catalog base URL")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath, "")
	if err != nil {
		return err
	}
	cfg.DryRun = true
	cfg.Feed.Symbol = *symbol
	cfg.Data.CaptureEnabled = true
	cfg.Data.OutputDir = *output
	if *bufferSize > 0 {
		cfg.Data.BufferSize = *bufferSize
	}
	if *flushInterval > 0 {
		cfg.Data.FlushIntervalSecs = *flushInterval
	}
	if *rotationInterval > 0 {
		cfg.Data.RotationIntervalSec = *rotationInterval
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Infow("capture starting", "symbol", *symbol, "output", *output)

	catalog := market.NewHTTPCatalogClient(*catalogURL)
	spotCfg := transport.DefaultConfig(*spotURL)
	depthCfg := transport.DefaultConfig(*depthURL)
	engine := orchestrator.New(cfg, logger, catalog, spotCfg, depthCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return engine.Run(ctx)
}

// backtestCmd replays a captured data directory through the stdlib
// merge reader and prints per-kind event counts within an optional
// [start, end) window, the lightweight substitute for a full replay
// execution engine noted in SPEC_FULL.md's open questions.
func backtestCmd(args []string) error {
	fset := flag.NewFlagSet("backtest", flag.ExitOnError)
	dataDir := fset.String("data-dir", "./data", "directory of captured .csv.gz event logs")
	startStr := fset.String("start", "", "RFC3339 start time (inclusive); empty means unbounded")
	endStr := fset.String("end", "", "RFC3339 end time (exclusive); empty means unbounded")
	if err := fset.Parse(args); err != nil {
		return err
	}

	var start, end time.Time
	var err error
	if *startStr != "" {
		if start, err = time.Parse(time.RFC3339, *startStr); err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
	}
	if *endStr != "" {
		if end, err = time.Parse(time.RFC3339, *endStr); err != nil {
			return fmt.Errorf("parse --end: %w", err)
		}
	}

	paths, err := findEventLogs(*dataDir)
	if err != nil {
		return fmt.Errorf("scan data dir: %w", err)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .csv.gz event logs found under %s", *dataDir)
	}

	reader, err := replay.Open(paths)
	if err != nil {
		return fmt.Errorf("open replay: %w", err)
	}
	defer reader.Close()

	counts := map[eventlog.Kind]int{}
	var total int
	for {
		ev, ok, err := reader.Next()
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if !ok {
			break
		}
		if !start.IsZero() && ev.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !ev.Timestamp.Before(end) {
			continue
		}
		counts[ev.Kind]++
		total++
	}

	fmt.Printf("replayed %d events from %d file(s) under %s\n", total, len(paths), *dataDir)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-20s %d\n", k, counts[eventlog.Kind(k)])
	}
	return nil
}

func findEventLogs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".csv.gz") {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

// statusCmd probes a running engine's telemetry scrape endpoint and
// reports whether it's reachable, the same liveness check the
// dashboard's /api/health does for the trading process itself.
func statusCmd(args []string) error {
	fset := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fset.String("config", "config.yaml", "path to config file")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath, "")
	if err != nil {
		return err
	}
	if cfg.Telemetry.MetricsPort <= 0 {
		fmt.Println("telemetry disabled in config (telemetry.metrics_port <= 0)")
		return nil
	}

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", cfg.Telemetry.MetricsPort)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("engine unreachable at %s: %v\n", url, err)
		return nil
	}
	defer resp.Body.Close()
	fmt.Printf("engine reachable at %s (status %d)\n", url, resp.StatusCode)
	return nil
}

// configCmd loads, applies env overrides and an optional rollout
// phase, validates, and prints the fully resolved configuration.
func configCmd(args []string) error {
	fset := flag.NewFlagSet("config", flag.ExitOnError)
	cfgPath := fset.String("config", "config.yaml", "path to config file")
	rollout := fset.String("rollout", "", "apply a staged rollout phase before printing")
	if err := fset.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath, *rollout)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
