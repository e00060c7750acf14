package cli

import (
	"context"
	"fmt"
	"log"

	"backtest-lab/internal/config"
	"backtest-lab/internal/storage"
	chstore "backtest-lab/internal/storage/clickhouse"
	"backtest-lab/internal/storage/memory"
	"backtest-lab/internal/storage/migrations"
	pgstore "backtest-lab/internal/storage/postgres"
)

// stores bundles the four run stores behind their interfaces.
type stores struct {
	manifests   storage.ManifestStore
	trades      storage.TradeLedgerStore
	equity      storage.EquityBarStore
	validations storage.ValidationResultStore
}

// buildStores wires the configured backends: Postgres for manifests,
// trades and validation results, ClickHouse for equity bars. Empty
// DSNs select the in-memory stores (useful for dry runs; nothing
// survives the process).
func buildStores(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (*stores, func(), error) {
	s := &stores{
		manifests:   memory.NewManifestStore(),
		trades:      memory.NewTradeLedgerStore(),
		equity:      memory.NewEquityBarStore(),
		validations: memory.NewValidationResultStore(),
	}
	cleanup := func() {}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.manifests = pgstore.NewManifestStore(pool)
		s.trades = pgstore.NewTradeLedgerStore(pool)
		s.validations = pgstore.NewValidationResultStore(pool)

		prev := cleanup
		cleanup = func() {
			pool.Close()
			prev()
		}
		logger.Printf("using postgres for manifests, trades, validation results")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.equity = chstore.NewEquityBarStore(conn)

		prev := cleanup
		cleanup = func() {
			conn.Close()
			prev()
		}
		logger.Printf("using clickhouse for equity bars")
	}

	return s, cleanup, nil
}
