package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/pawnfi/lending-go/config"
	"github.com/pawnfi/lending-go/internal/access"
	"github.com/pawnfi/lending-go/internal/events"
	"github.com/pawnfi/lending-go/internal/services/ledger"
	"github.com/pawnfi/lending-go/internal/services/oracle"
	"github.com/pawnfi/lending-go/internal/services/router"
	"github.com/pawnfi/lending-go/internal/storage/rounds"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal("failed to load configuration", zap.Error(err))
		}
		cfg = loaded
	}

	journal, err := events.NewJournal(filepath.Join(cfg.WalDir, "events"), logger)
	if err != nil {
		logger.Fatal("failed to open event journal", zap.Error(err))
	}
	defer journal.Close()

	roundStore, err := rounds.NewStore(filepath.Join(cfg.WalDir, "rounds"))
	if err != nil {
		logger.Fatal("failed to open round store", zap.Error(err))
	}
	defer roundStore.Close()

	acl := access.NewController(cfg.Admin, logger)

	agg, err := oracle.New(oracle.Config{
		Numeraire:    cfg.Native,
		PoolFee:      cfg.PoolFee,
		TwapInterval: cfg.TwapInterval,
		Blend:        cfg.Blend,
	}, acl, roundStore, journal, nil, logger)
	if err != nil {
		logger.Fatal("failed to build aggregated oracle", zap.Error(err))
	}

	priceRouter := router.New(cfg.Native, cfg.WrappedNativeSymbol, agg, acl, journal, logger)
	collateralLedger := ledger.New(cfg.Admin, acl, journal, logger)

	serve(&core{oracle: agg, router: priceRouter, ledger: collateralLedger}, cfg, logger)
}

// core holds the wired components for the embedding process. Markets,
// bindings and reporters are registered through the administrative
// surface after startup.
type core struct {
	oracle *oracle.AggregatedOracle
	router *router.Router
	ledger *ledger.Ledger
}

func serve(c *core, cfg config.Config, logger *zap.Logger) {
	logger.Info("pricing and collateral core started",
		zap.String("admin", cfg.Admin.Hex()),
		zap.String("native", cfg.Native.Hex()),
		zap.Duration("twap_interval", cfg.TwapInterval))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
}
