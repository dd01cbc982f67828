// Package main runs the voteledger server: the voting program behind a
// signed-transaction HTTP API, backed by memory, bbolt or PostgreSQL accounts
// and an optional ClickHouse transaction mirror.
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

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/srtaalej/capstone-proj/internal/api"
	"github.com/srtaalej/capstone-proj/internal/config"
	"github.com/srtaalej/capstone-proj/internal/ledger"
	"github.com/srtaalej/capstone-proj/internal/logging"
	"github.com/srtaalej/capstone-proj/internal/observability"
	"github.com/srtaalej/capstone-proj/internal/program"
	"github.com/srtaalej/capstone-proj/internal/storage"
	boltstore "github.com/srtaalej/capstone-proj/internal/storage/bolt"
	chstore "github.com/srtaalej/capstone-proj/internal/storage/clickhouse"
	"github.com/srtaalej/capstone-proj/internal/storage/memory"
	"github.com/srtaalej/capstone-proj/internal/storage/migrations"
	pgstore "github.com/srtaalej/capstone-proj/internal/storage/postgres"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "voteledger: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	flags := pflag.NewFlagSet("voteledger", pflag.ContinueOnError)
	config.AddFlags(flags)
	cfg, err := config.Load(flags, args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	prog := program.New(stores.accounts,
		program.WithDeriver(cfg.Deriver()),
		program.WithConfig(program.Config{
			MaxAttempts:     cfg.MaxAttempts,
			RequireIdentity: cfg.RequireIdentity,
		}),
		program.WithLogger(logger.Named("program")),
	)

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger.Named("ledger"))}
	if stores.mirror != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithMirror(stores.mirror))
	}
	l := ledger.New(prog, stores.journal, ledgerOpts...)

	apiOpts := []api.Option{
		api.WithLogger(logger.Named("api")),
		api.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	}
	if stores.stats != nil {
		apiOpts = append(apiOpts, api.WithStats(stores.stats))
	}
	srv := api.NewServer(l, apiOpts...)

	servers := []*http.Server{{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           observability.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
		})
	}

	logger.Info("starting voteledger",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("metrics_addr", cfg.MetricsAddr),
		zap.String("store", cfg.Store),
		zap.Bool("clickhouse_mirror", stores.mirror != nil),
		zap.Stringer("program_id", cfg.ProgramID),
		zap.Stringer("identity_program_id", cfg.IdentityProgramID),
		zap.Bool("require_identity", cfg.RequireIdentity),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		s := s
		g.Go(func() error {
			logger.Info("listening", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", s.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("voteledger stopped")
	return nil
}

// stores holds the backends selected by the configuration.
type stores struct {
	accounts storage.AccountStore
	journal  storage.TransactionLogStore
	mirror   storage.TransactionLogStore // nil without ClickHouse
	stats    storage.StatsStore          // nil when no backend can summarize
}

// createStores opens the configured backends and applies migrations.
func createStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, func(), error) {
	var (
		s       stores
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store {
	case config.StoreMemory:
		s.accounts = memory.NewAccountStore()
		s.journal = memory.NewTransactionLogStore()

	case config.StoreBolt:
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt %s: %w", cfg.BoltPath, err)
		}
		closers = append(closers, func() {
			if err := db.Close(); err != nil {
				logger.Warn("close bolt", zap.Error(err))
			}
		})
		s.accounts = boltstore.NewAccountStore(db)
		s.journal = boltstore.NewTransactionLogStore(db)

	case config.StorePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.accounts = pgstore.NewAccountStore(pool)
		s.journal = pgstore.NewTransactionLogStore(pool)

	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		closers = append(closers, func() {
			if err := conn.Close(); err != nil {
				logger.Warn("close clickhouse", zap.Error(err))
			}
		})
		mirror := chstore.NewTransactionLogStore(conn)
		s.mirror = mirror
		s.stats = mirror
	} else if stats, ok := s.journal.(storage.StatsStore); ok {
		s.stats = stats
	}

	return &s, cleanup, nil
}
