// Command rebuild replays the event log into one or all projections and
// prints the rebuild reports as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wms-platform/stock-ledger-service/internal/config"
	"github.com/wms-platform/stock-ledger-service/internal/infrastructure/backend"
	"github.com/wms-platform/stock-ledger-service/internal/projections"
	"github.com/wms-platform/stock-ledger-service/pkg/logging"
	"github.com/wms-platform/stock-ledger-service/pkg/metrics"
)

const serviceName = "stock-ledger-rebuild"

func main() {
	var (
		projection = flag.String("projection", "", "projection to rebuild; all when empty")
		modeName   = flag.String("mode", string(projections.ModeFull), "full or incremental")
		configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	)
	flag.Parse()

	os.Exit(run(*projection, *modeName, *configFile))
}

func run(projection, modeName, configFile string) int {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	mode, err := projections.ParseMode(modeName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(cfg.LogLevel)
	logConfig.Output = os.Stderr
	logger := logging.New(logConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(metrics.DefaultConfig(serviceName))
	stores, err := backend.Open(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("Failed to open stores")
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = stores.Close(closeCtx)
	}()

	engine := projections.NewEngine(
		stores.Events,
		stores.Views,
		&projections.EngineConfig{BatchSize: cfg.Projections.BatchSize},
		logger,
		m,
		projections.DefaultProjections()...,
	)

	var reports []*projections.RebuildReport
	if projection == "" {
		reports, err = engine.RebuildAll(ctx, mode)
	} else {
		var report *projections.RebuildReport
		report, err = engine.Rebuild(ctx, projection, mode)
		if report != nil {
			reports = append(reports, report)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(reports); encErr != nil {
		logger.WithError(encErr).Error("Failed to write report")
		return 1
	}

	if err != nil {
		logger.WithError(err).Error("Rebuild failed")
		return 1
	}
	return 0
}
