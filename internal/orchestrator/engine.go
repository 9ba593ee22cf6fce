// Package orchestrator wires the ingestion, detection, sizing, risk,
// and execution subsystems into the trading state machine: spot feed
// and market directory tasks feed a per-market momentum/lag/spread
// evaluation loop, gated by the risk manager and filled by the
// configured executor.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/polyhft/tradeengine/internal/api"
	"github.com/polyhft/tradeengine/internal/book"
	"github.com/polyhft/tradeengine/internal/config"
	"github.com/polyhft/tradeengine/internal/eventlog"
	"github.com/polyhft/tradeengine/internal/feed"
	"github.com/polyhft/tradeengine/internal/lag"
	"github.com/polyhft/tradeengine/internal/ledger"
	"github.com/polyhft/tradeengine/internal/market"
	"github.com/polyhft/tradeengine/internal/model"
	"github.com/polyhft/tradeengine/internal/momentum"
	"github.com/polyhft/tradeengine/internal/notify"
	"github.com/polyhft/tradeengine/internal/paper"
	"github.com/polyhft/tradeengine/internal/recorder"
	"github.com/polyhft/tradeengine/internal/risk"
	"github.com/polyhft/tradeengine/internal/sizing"
	"github.com/polyhft/tradeengine/internal/spread"
	"github.com/polyhft/tradeengine/internal/telemetry"
	"github.com/polyhft/tradeengine/internal/transport"
)

// drawdownCheckInterval is how often equity is sampled against the
// drawdown monitor's halt thresholds.
const drawdownCheckInterval = 30 * time.Second

// expiryCheckInterval is how often the directory is swept for markets
// whose close time has passed, closing out any remaining positions at
// the last recorded mark.
const expiryCheckInterval = 15 * time.Second

// Engine owns every subsystem and runs the top-level trading loop.
type Engine struct {
	cfg config.Config
	log *zap.SugaredLogger

	books     *book.Store
	directory *market.Directory
	spotFeed  *feed.SpotFeed
	depthCfg  transport.Config

	vol       *model.VolatilityEstimator
	fairValue model.FairValueModel
	momentum  *momentum.Detector
	lagDet    *lag.Detector
	spreadDet *spread.Detector
	sizer     sizing.Policy

	risk     *risk.Manager
	drawdown *risk.DrawdownMonitor
	executor *paper.Simulator
	ledger   *ledger.Ledger
	rec      *recorder.Recorder
	notifier *notify.Notifier

	metrics    *telemetry.Metrics
	metricsSrv *telemetry.Server
	apiSrv     *api.Server

	mu                  sync.Mutex
	knownTokens         map[string]struct{}
	depthCancel         context.CancelFunc
	lastDepthTokenCount int
	notifiedCooldown    bool
	notifiedHalt        bool

	totalSignals int
	totalFills   int
}

// New constructs an Engine from a fully validated configuration.
func New(cfg config.Config, log *zap.SugaredLogger, catalog market.CatalogClient, spotTransport transport.Config, depthTransport transport.Config) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	e := &Engine{
		cfg:         cfg,
		log:         log,
		books:       book.NewStore(),
		vol:         model.NewVolatilityEstimator(time.Duration(cfg.Model.VolatilityWindowMinutes) * time.Minute),
		fairValue:   model.NewGBMModel(),
		knownTokens: make(map[string]struct{}),
		depthCfg:    depthTransport,
		metrics:     telemetry.New(),
		notifier:    notify.NewNotifier(cfg.Notify.BotToken, cfg.Notify.ChatID),
	}

	e.momentum = momentum.NewDetector(momentum.Config{
		Window:              time.Duration(cfg.Momentum.WindowSeconds) * time.Second,
		MinMovePct:          decimal.NewFromFloat(cfg.Momentum.MinMovePct),
		MaxMovePct:          decimal.NewFromFloat(cfg.Momentum.MaxMovePct),
		ConfirmationSeconds: time.Duration(cfg.Momentum.ConfirmationSeconds) * time.Second,
	})
	e.lagDet = lag.NewDetector(lag.Config{
		MinLagCents:           decimal.NewFromFloat(cfg.Lag.MinLagCents),
		MaxYesForUp:           decimal.NewFromFloat(cfg.Lag.MaxYesForUp),
		MinYesForDown:         decimal.NewFromFloat(cfg.Lag.MinYesForDown),
		MinSecondsAfterOpen:   time.Duration(cfg.Lag.MinSecondsAfterOpen) * time.Second,
		MaxSecondsBeforeClose: time.Duration(cfg.Lag.MaxSecondsBeforeClose) * time.Second,
		PriceSensitivity:      decimal.NewFromInt(10),
	})
	e.spreadDet = spread.NewDetector(spread.Config{
		MinProfitPct:   decimal.NewFromFloat(cfg.Spread.MinProfitPct),
		FeeRatePerSide: decimal.NewFromFloat(cfg.Spread.FeeRatePerSide),
		MaxBookAgeMs:   cfg.Spread.MaxBookAgeMs,
		BaseSize:       decimal.NewFromFloat(cfg.Spread.BaseSize),
		MaxPositions:   cfg.Spread.MaxPositions,
	})

	if cfg.Sizing.Mode == "fixed" {
		e.sizer = sizing.NewFixedPolicy(sizing.FixedConfig{
			FixedPct:          decimal.NewFromFloat(cfg.Sizing.FixedPct),
			MaxPct:            decimal.NewFromFloat(cfg.Sizing.MaxPct),
			MinSize:           decimal.NewFromInt(1),
			ScaleByConfidence: true,
		})
	} else {
		e.sizer = sizing.NewKellyPolicy(sizing.KellyConfig{
			Fraction:  decimal.NewFromFloat(cfg.Sizing.KellyFraction),
			MaxBetPct: decimal.NewFromFloat(cfg.Risk.MaxPositionPct),
		})
	}

	e.risk = risk.New(risk.Config{
		MaxOpenOrders:           cfg.Risk.MaxConcurrentPositions,
		MaxDailyLossPct:         decimal.NewFromFloat(cfg.Risk.MaxDailyLossPct),
		AccountCapitalUSDC:      decimal.NewFromFloat(cfg.Risk.InitialBankroll),
		MaxPositionPerMarket:    decimal.NewFromFloat(cfg.Risk.InitialBankroll).Mul(decimal.NewFromFloat(cfg.Risk.MaxPositionPct)),
		MaxConsecutiveLosses:    5,
		ConsecutiveLossCooldown: 15 * time.Minute,
	})
	e.drawdown = risk.NewDrawdownMonitor(decimal.NewFromFloat(cfg.Risk.InitialBankroll))
	e.ledger = ledger.New()

	paperCfg := paper.DefaultConfig()
	paperCfg.InitialBalanceUSDC = decimal.NewFromFloat(cfg.Risk.InitialBankroll)
	paperCfg.FeeRate = decimal.NewFromFloat(cfg.Execution.FeeRatePerSide)
	paperCfg.SlippageRate = decimal.NewFromFloat(cfg.Execution.SlippageEstimate)
	e.executor = paper.NewSimulator(paperCfg)

	if cfg.Data.CaptureEnabled {
		recCfg := recorder.DefaultConfig(cfg.Data.OutputDir)
		recCfg.RotationInterval = cfg.Data.RotationIntervalSec
		if cfg.Data.BufferSize > 0 {
			recCfg.BufferSize = cfg.Data.BufferSize
		}
		if cfg.Data.FlushIntervalSecs > 0 {
			recCfg.FlushIntervalSecs = cfg.Data.FlushIntervalSecs
		}
		e.rec = recorder.New(recCfg)
	}

	e.spotFeed = feed.NewSpotFeed(spotTransport, log)
	e.directory = market.NewDirectory(catalog, cfg.Market.Asset, cfg.Market.RefreshIntervalSecs, e.onNewTokens)

	return e
}

// onNewTokens is the market directory's discovery callback: it adds
// the pair to the known-token set and re-subscribes the depth feed
// over the full current set.
func (e *Engine) onNewTokens(conditionID, yesTokenID, noTokenID string) {
	e.mu.Lock()
	e.knownTokens[yesTokenID] = struct{}{}
	e.knownTokens[noTokenID] = struct{}{}
	e.mu.Unlock()
	e.log.Infow("market discovered", "condition_id", conditionID, "yes", yesTokenID, "no", noTokenID)
}

func (e *Engine) tokenSnapshot() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.knownTokens))
	for id := range e.knownTokens {
		ids = append(ids, id)
	}
	return ids
}

// Run starts every subsystem task and blocks until ctx is cancelled or
// a termination signal is received, then drains and shuts down.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if e.cfg.Telemetry.MetricsPort > 0 {
		e.metricsSrv = telemetry.NewServer(fmt.Sprintf(":%d", e.cfg.Telemetry.MetricsPort), e.metrics)
		if err := e.metricsSrv.Start(); err != nil {
			e.log.Warnw("telemetry server failed to start", "error", err)
			e.metricsSrv = nil
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = e.metricsSrv.Shutdown(shutdownCtx)
			}()
		}
	}

	if e.cfg.API.Enabled {
		e.apiSrv = api.NewServer(e.cfg.API.Addr, e)
		if err := e.apiSrv.Start(ctx); err != nil {
			e.log.Warnw("api server failed to start", "error", err)
			e.apiSrv = nil
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = e.apiSrv.Shutdown(shutdownCtx)
			}()
		}
	}

	go e.directory.Run(ctx)

	if e.rec != nil {
		recDone := make(chan struct{})
		go e.rec.Run(recDone)
		defer close(recDone)
	}

	ticks := e.spotFeed.Run(ctx)
	depthUpdates := e.runDepthLoop(ctx)

	resubTicker := time.NewTicker(e.cfg.Market.RefreshIntervalSecs)
	defer resubTicker.Stop()
	drawdownTicker := time.NewTicker(drawdownCheckInterval)
	defer drawdownTicker.Stop()
	expiryTicker := time.NewTicker(expiryCheckInterval)
	defer expiryTicker.Stop()

	e.log.Infow("orchestrator started", "dry_run", e.cfg.DryRun, "asset", e.cfg.Market.Asset)

	for {
		select {
		case <-sigCh:
			e.log.Info("shutdown signal received")
			goto shutdown
		case <-ctx.Done():
			goto shutdown
		case tick, ok := <-ticks:
			if !ok {
				e.log.Warn("spot feed channel closed")
				ticks = e.spotFeed.Run(ctx)
				continue
			}
			e.handleTick(tick)
		case upd, ok := <-depthUpdates:
			if !ok {
				depthUpdates = e.runDepthLoop(ctx)
				continue
			}
			e.handleDepthUpdate(upd)
		case <-resubTicker.C:
			if e.tokenSetChanged() {
				depthUpdates = e.runDepthLoop(ctx)
			}
		case <-drawdownTicker.C:
			e.checkDrawdown()
		case <-expiryTicker.C:
			e.closeExpiredMarkets()
		}
	}

shutdown:
	e.log.Infow("shutting down", "signals", e.totalSignals, "fills", e.totalFills, "realized_pnl", e.ledger.TotalPnL().String())
	return nil
}

// runDepthLoop starts (or restarts) the depth feed consumer over the
// currently known token set, returning its output channel.
func (e *Engine) runDepthLoop(ctx context.Context) <-chan feed.Update {
	e.mu.Lock()
	if e.depthCancel != nil {
		e.depthCancel()
	}
	depthCtx, cancel := context.WithCancel(ctx)
	e.depthCancel = cancel
	e.mu.Unlock()

	df := feed.NewDepthFeed(e.depthCfg, e.log)
	return df.Run(depthCtx, e.tokenSnapshot())
}

// tokenSetChanged reports whether the known token set has grown since
// the depth feed was last (re)started, recording the new baseline as a
// side effect. The depth stream has no incremental add-subscription
// message, so a changed set is handled by a full restart rather than
// an in-place subscribe; this keeps restarts to cases that actually
// need them instead of firing on every tick of resubTicker.
func (e *Engine) tokenSetChanged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := len(e.knownTokens)
	if current == e.lastDepthTokenCount {
		return false
	}
	e.lastDepthTokenCount = current
	e.log.Debugw("token set changed, restarting depth subscription", "tokens", current)
	return true
}

func (e *Engine) handleDepthUpdate(upd feed.Update) {
	e.metrics.BookUpdates.Inc()
	if upd.Snapshot {
		e.books.ApplySnapshot(upd.TokenID, upd.Bids, upd.Asks, upd.Timestamp)
	} else {
		e.books.ApplyDelta(upd.TokenID, upd.Side, upd.Changes, upd.Timestamp)
	}
	if e.rec != nil {
		e.rec.Record(eventlog.Event{
			Timestamp: upd.Timestamp,
			Kind:      eventlog.OrderBookUpdate,
			Stream:    e.cfg.Market.Asset,
			Fields:    map[string]string{"token_id": upd.TokenID},
		})
	}
}
