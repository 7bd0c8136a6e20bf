// Command chat-follower mirrors the on-chain chat, serves it over HTTP and
// optionally archives confirmed messages into ClickHouse.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/archive"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/ledger"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/network"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/profile"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/repository/clickhouse"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/service/sender"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/service/syncer"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/session"
	"github.com/goodnatureofminers/ledgerchat/internal/chat/store"
	"github.com/goodnatureofminers/ledgerchat/internal/metrics"
	"github.com/goodnatureofminers/ledgerchat/internal/transport"
	grpcZap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

type config struct {
	Contract   string `long:"contract" env:"CHAT_CONTRACT" description:"chat contract address" required:"true"`
	PrivateKey string `long:"private-key" env:"CHAT_PRIVATE_KEY" description:"hex signing key, read-only mirror when empty"`

	ChainID     uint64 `long:"chain-id" env:"CHAT_CHAIN_ID" description:"expected chain id" default:"8119"`
	ChainName   string `long:"chain-name" env:"CHAT_CHAIN_NAME" description:"expected chain name" default:"Shardeum EVM Testnet"`
	RPCURL      string `long:"rpc-url" env:"CHAT_RPC_URL" description:"node RPC URL" default:"https://api-mezame.shardeum.org"`
	ExplorerURL string `long:"explorer-url" env:"CHAT_EXPLORER_URL" description:"block explorer URL" default:"https://explorer-mezame.shardeum.org"`
	Currency    string `long:"currency" env:"CHAT_CURRENCY" description:"native currency symbol" default:"SHM"`

	ProfileURL     string        `long:"profile-url" env:"CHAT_PROFILE_URL" description:"profile service base URL, usernames and activity are disabled when empty"`
	ProfileTimeout time.Duration `long:"profile-timeout" env:"CHAT_PROFILE_TIMEOUT" description:"profile service request timeout" default:"5s"`
	NameCacheSize  int           `long:"name-cache-size" env:"CHAT_NAME_CACHE_SIZE" description:"cached display names" default:"1024"`
	NameCacheTTL   time.Duration `long:"name-cache-ttl" env:"CHAT_NAME_CACHE_TTL" description:"display name cache TTL" default:"10m"`

	ClickhouseDSN string `long:"clickhouse-dsn" env:"CHAT_CLICKHOUSE_DSN" description:"ClickHouse DSN, archiving is disabled when empty"`
	Backfill      bool   `long:"backfill" env:"CHAT_BACKFILL" description:"backfill the archive before following"`

	Addr     string `long:"addr" env:"CHAT_GRPC_ADDR" description:"gRPC health addr" default:":8000"`
	RestAddr string `long:"rest-addr" env:"CHAT_REST_ADDR" description:"HTTP addr" default:":8001"`
}

func (c config) chain() model.ChainParams {
	return model.ChainParams{
		ChainID:     c.ChainID,
		Name:        c.ChainName,
		RPCURL:      c.RPCURL,
		ExplorerURL: c.ExplorerURL,
		Currency:    c.Currency,
	}
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
	grpcZap.ReplaceGrpcLoggerV2(logger)

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("chat follower failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	chain := cfg.chain()

	client, err := ledger.NewClient(ctx, ledger.Config{
		Contract:   cfg.Contract,
		PrivateKey: cfg.PrivateKey,
		Chain:      chain,
	}, ledger.NewRegistry(model.ShardeumTestnet), metrics.NewLedgerClient(chain.ChainID), logger.Named("ledger"))
	if err != nil {
		return fmt.Errorf("init ledger client: %w", err)
	}
	defer client.Close()

	sink, closeArchive, err := newArchive(ctx, cfg, client, logger.Named("archive"))
	if err != nil {
		return err
	}
	defer closeArchive()

	opts := []store.Option{store.WithLogger(logger.Named("store"))}
	if sink != nil {
		opts = append(opts, store.WithOnConfirmed(sink.Add))
	}
	messages := store.New(opts...)

	guard, err := network.NewGuard(client, chain, metrics.NewNetworkGuard(chain.ChainID), logger.Named("network"))
	if err != nil {
		return fmt.Errorf("init network guard: %w", err)
	}

	var (
		names  transport.Names
		poster profile.ActivityPoster
	)
	if cfg.ProfileURL != "" {
		profiles, err := profile.NewClient(cfg.ProfileURL, cfg.ProfileTimeout)
		if err != nil {
			return fmt.Errorf("init profile client: %w", err)
		}
		names = profile.NewResolver(profiles, cfg.NameCacheSize, cfg.NameCacheTTL, logger.Named("names"))
		poster = profiles
	}
	activity := profile.NewActivityLogger(poster, cfg.ProfileTimeout, logger.Named("activity"))
	defer activity.Close()

	send, err := sender.NewSender(client, guard, messages, activity, metrics.NewSender(chain.ChainID), logger.Named("sender"))
	if err != nil {
		return fmt.Errorf("init sender: %w", err)
	}
	loops, err := syncer.NewManager(client, guard, messages, metrics.NewSyncLoop(chain.ChainID), logger.Named("syncer"))
	if err != nil {
		return fmt.Errorf("init syncer: %w", err)
	}

	account, _ := client.SignerAddress()
	sess, err := session.New(session.Deps{
		Client:   client,
		Guard:    guard,
		Sender:   send,
		Syncer:   loops,
		Store:    messages,
		Activity: activity,
	}, account, logger.Named("session"))
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.Close()

	reporter := transport.NewHealthReporter(guard)
	defer reporter.Close()
	if err := startGRPCServer(ctx, cfg.Addr, reporter, logger); err != nil {
		return err
	}

	handler, err := transport.NewChatHandler(sess, names, logger.Named("http"))
	if err != nil {
		return err
	}
	return serveHTTP(ctx, cfg.RestAddr, handler.Routes(), logger)
}

// newArchive wires the ClickHouse sink when a DSN is configured. The returned
// close func flushes and releases it.
func newArchive(ctx context.Context, cfg config, client *ledger.Client, logger *zap.Logger) (*archive.Sink, func(), error) {
	if cfg.ClickhouseDSN == "" {
		return nil, func() {}, nil
	}

	repo, err := clickhouse.NewRepository(cfg.ClickhouseDSN, metrics.NewClickhouseRepository())
	if err != nil {
		return nil, nil, fmt.Errorf("init repository: %w", err)
	}
	sink, err := archive.NewSink(repo, client.ContractAddress(), metrics.NewArchiveSink(), logger)
	if err != nil {
		_ = repo.Close()
		return nil, nil, err
	}

	if cfg.Backfill {
		n, err := sink.Backfill(ctx, client)
		if err != nil {
			_ = repo.Close()
			return nil, nil, fmt.Errorf("backfill archive: %w", err)
		}
		logger.Info("archive backfilled", zap.Int("messages", n))
	}

	sink.Start(ctx)
	return sink, func() {
		sink.Stop()
		if err := repo.Close(); err != nil {
			logger.Error("failed to close repository", zap.Error(err))
		}
	}, nil
}

func startGRPCServer(ctx context.Context, addr string, reporter *transport.HealthReporter, logger *zap.Logger) error {
	grpcServer := transport.NewGRPCServer(reporter, logger)

	socket, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	go func() {
		logger.Info("starting gRPC server", zap.String("addr", addr))
		if serveErr := grpcServer.Serve(socket); serveErr != nil {
			logger.Error("gRPC server failed", zap.Error(serveErr))
		}
	}()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down gRPC server")
		grpcServer.GracefulStop()
	}()
	return nil
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// sends wait for confirmation
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: http.DefaultMaxHeaderBytes,
	}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down the http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown http server", zap.Error(err))
		}
	}()

	logger.Info("starting HTTP server", zap.String("addr", addr))
	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}
