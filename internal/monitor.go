package internal

import (
	"context"
	"fmt"
	"os"
	"time"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/liqmon/config"
	"github.com/vadiminshakov/liqmon/internal/clients"
	"github.com/vadiminshakov/liqmon/internal/domain"
	"github.com/vadiminshakov/liqmon/internal/services/executor"
	"github.com/vadiminshakov/liqmon/internal/services/feed"
	"github.com/vadiminshakov/liqmon/internal/services/health"
	"github.com/vadiminshakov/liqmon/internal/services/scanner"
	"github.com/vadiminshakov/liqmon/internal/services/snapshot"
	"github.com/vadiminshakov/liqmon/internal/storage/executions"
	"github.com/vadiminshakov/liqmon/internal/web"
)

const (
	syntheticBorrowerCount = 25
	simBackendFailureRate  = 0.15
	simBackendLatency      = 300 * time.Millisecond
)

// Monitor wires the liquidation-opportunity pipeline: price feed
// aggregator, borrower snapshot source, scanner, executor adapter and
// the web layer on top.
type Monitor struct {
	Aggregator *feed.Aggregator
	Scanner    *scanner.Scanner
	Executor   *executor.Executor
	History    *executions.History

	journal *executions.Journal
	web     *web.Server
	conf    config.Config
	logger  *zap.Logger
}

// NewMonitor builds all components from configuration. The poll
// fallback venue is dispatched by conf.Platform; this is the single
// point of truth for platform-specific wiring.
func NewMonitor(conf config.Config, logger *zap.Logger) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poll, err := pollSourceFor(conf.Platform)
	if err != nil {
		return nil, err
	}

	var stream feed.StreamSource
	if conf.StreamURL != "" {
		stream = feed.NewWSStream(conf.StreamURL, logger)
	}

	aggregator := feed.NewAggregator(conf.Symbols, stream, poll, conf.PollInterval, logger)

	var journal *executions.Journal
	if conf.WALDir != "" {
		journal, err = executions.NewJournal(conf.WALDir)
		if err != nil {
			return nil, errors.Wrap(err, "open execution journal")
		}
	}
	history := executions.NewHistory(journal, logger)

	source := snapshot.NewSyntheticSource(aggregator, syntheticBorrowerCount, 0)

	scan := scanner.New(source, aggregator, scanner.Config{
		CloseFactor:     conf.CloseFactor,
		BonusRate:       conf.LiquidationBonus,
		ScanInterval:    conf.ScanInterval,
		SnapshotTimeout: conf.SnapshotTimeout,
	}, logger)

	backend := executor.NewSimBackend(simBackendFailureRate, simBackendLatency, 0, logger)
	exec := executor.New(backend, history, logger,
		executor.WithRevalidation(revalidation(source, aggregator)))

	return &Monitor{
		Aggregator: aggregator,
		Scanner:    scan,
		Executor:   exec,
		History:    history,
		journal:    journal,
		web:        web.NewServer(conf.WebAddr, scan, exec, history),
		conf:       conf,
		logger:     logger,
	}, nil
}

// Run drives all components until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return m.Aggregator.Run(ctx) })
	g.Go(func() error { return m.Scanner.Run(ctx) })
	g.Go(func() error {
		if len(m.conf.TLSDomains) > 0 {
			return m.web.StartWithAutoTLS(ctx, m.conf.TLSDomains, "")
		}
		return m.web.Start(ctx)
	})

	err := g.Wait()
	if m.journal != nil {
		if closeErr := m.journal.Close(); closeErr != nil {
			m.logger.Warn("failed to close execution journal", zap.Error(closeErr))
		}
	}
	return err
}

func pollSourceFor(platform string) (feed.PollSource, error) {
	switch platform {
	case "binance":
		// public ticker endpoint, no credentials needed
		return feed.NewBinancePoller(binance.NewClient("", "")), nil
	case "bybit":
		return feed.NewBybitPoller(bybit.NewClient()), nil
	case "hyperliquid":
		key := os.Getenv("HYPERLIQUID_PRIVATE_KEY")
		if key == "" {
			return nil, fmt.Errorf("HYPERLIQUID_PRIVATE_KEY environment variable must be set for platform hyperliquid")
		}
		client, err := clients.NewHyperliquidClient(key, "")
		if err != nil {
			return nil, errors.Wrap(err, "create hyperliquid client")
		}
		return feed.NewHyperliquidPoller(client.Info()), nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
}

// revalidation re-runs the health factor check against current state
// right before committing an execution, rejecting opportunities that
// went stale since discovery.
func revalidation(source snapshot.Source, aggregator *feed.Aggregator) func(ctx context.Context, opp domain.LiquidationOpportunity) error {
	return func(ctx context.Context, opp domain.LiquidationOpportunity) error {
		borrowers, err := source.Snapshot(ctx)
		if err != nil {
			return errors.Wrap(err, "snapshot for revalidation")
		}

		prices := aggregator.PriceValues()
		for _, b := range borrowers {
			if b.Address != opp.BorrowerAddress {
				continue
			}
			hf, err := health.Calculate(b.Collateral, b.Debt, prices)
			if err != nil {
				return errors.Wrap(err, "health factor for revalidation")
			}
			if hf.GreaterThanOrEqual(decimal.NewFromInt(1)) {
				return errors.Errorf("borrower %s recovered, health factor now %s", b.Address.Hex(), hf.String())
			}
			return nil
		}
		return errors.Errorf("borrower %s no longer present in snapshot", opp.BorrowerAddress.Hex())
	}
}
