// Command archive-backfill copies every chat message the archive is missing
// from the ledger into ClickHouse and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/archive"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/ledger"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/repository/clickhouse"
	"github.com/goodnatureofminers/ledgerchat/internal/metrics"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type config struct {
	ClickhouseDSN string `long:"clickhouse-dsn" env:"ARCHIVE_CLICKHOUSE_DSN" description:"ClickHouse DSN" required:"true"`
	Contract      string `long:"contract" env:"ARCHIVE_CONTRACT" description:"chat contract address" required:"true"`
	ChainID       uint64 `long:"chain-id" env:"ARCHIVE_CHAIN_ID" description:"chain id" default:"8119"`
	RPCURL        string `long:"rpc-url" env:"ARCHIVE_RPC_URL" description:"node RPC URL" default:"https://api-mezame.shardeum.org"`
	MetricsAddr   string `long:"metrics-addr" env:"ARCHIVE_METRICS_ADDR" description:"address for metrics server" default:":2112"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("archive backfill failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	repo, err := clickhouse.NewRepository(cfg.ClickhouseDSN, metrics.NewClickhouseRepository())
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("failed to close repository", zap.Error(err))
		}
	}()

	chain := model.ShardeumTestnet
	chain.ChainID = cfg.ChainID
	chain.RPCURL = cfg.RPCURL
	client, err := ledger.NewClient(ctx, ledger.Config{Contract: cfg.Contract, Chain: chain},
		nil, metrics.NewLedgerClient(cfg.ChainID), logger.Named("ledger"))
	if err != nil {
		return fmt.Errorf("init ledger client: %w", err)
	}
	defer client.Close()

	sink, err := archive.NewSink(repo, client.ContractAddress(), metrics.NewArchiveSink(), logger.Named("archive"))
	if err != nil {
		return err
	}
	n, err := sink.Backfill(ctx, client)
	if err != nil {
		return err
	}
	logger.Info("backfill finished", zap.Int("messages", n))
	return nil
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}
