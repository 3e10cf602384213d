// Command liqmon runs the liquidation-opportunity monitor: it ingests
// live asset prices over a streaming channel with a polling fallback,
// recomputes borrower health factors on a scan timer, ranks candidate
// liquidations by estimated profit and exposes them over HTTP (SSE
// streams plus an execution endpoint).
//
// Usage:
//
//	liqmon --config config.yaml
//	liqmon (uses CLI arguments)
//
// Required environment variables:
//
//	For platform hyperliquid: HYPERLIQUID_PRIVATE_KEY
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/liqmon/config"
	"github.com/vadiminshakov/liqmon/internal"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	conf, err := config.Get()
	if err != nil {
		logger.Fatal("failed to get configuration", zap.Error(err))
	}

	monitor, err := internal.NewMonitor(conf, logger)
	if err != nil {
		logger.Fatal("failed to create monitor", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("started",
		zap.String("platform", conf.Platform),
		zap.Strings("symbols", conf.Symbols),
		zap.Duration("scan_interval", conf.ScanInterval),
		zap.String("web_addr", conf.WebAddr))

	if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error(err.Error())
	}
}
