package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cyl19970726/haigo-sub001/internal/core/config"
	redisclient "github.com/cyl19970726/haigo-sub001/internal/infra/redis"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage/memory"
	"github.com/cyl19970726/haigo-sub001/internal/infra/storage/postgres"
)

// stores groups the repositories used by the ingestors.
type stores struct {
	cursors  storage.CursorRepository
	accounts storage.AccountRepository
	orders   storage.OrderRepository
	staking  storage.StakingRepository
	skipped  storage.SkippedEventRepository

	db    *postgres.DB
	redis *redisclient.Client
	mem   *memory.MemoryStorage
}

// openStores connects the configured backends. Domain tables live in
// PostgreSQL when a database URL is set and in memory otherwise; the cursor
// store is chosen separately.
func openStores(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*stores, error) {
	s := &stores{}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		s.db = db

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(); err != nil {
				s.close()
				return nil, err
			}
		}

		s.accounts = postgres.NewAccountRepo(db)
		s.orders = postgres.NewOrderRepo(db)
		s.staking = postgres.NewStakingRepo(db)
		s.skipped = postgres.NewSkippedEventRepo(db)
		log.Info("Using PostgreSQL storage", "driver", cfg.Database.Driver)
	} else {
		s.mem = memory.NewMemoryStorage()
		s.accounts = memory.NewAccountRepo(s.mem)
		s.orders = memory.NewOrderRepo(s.mem)
		s.staking = memory.NewStakingRepo(s.mem)
		s.skipped = memory.NewSkippedRepo(s.mem)
		log.Warn("DATABASE_URL not set, using memory storage")
	}

	switch cfg.CursorStore {
	case config.StoreRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			s.close()
			return nil, err
		}
		s.redis = client
		s.cursors = redisclient.NewCursorStore(client)
		log.Info("Using Redis cursor store")
	case config.StorePostgres, "":
		if s.db != nil {
			s.cursors = postgres.NewCursorRepo(s.db)
			break
		}
		log.Warn("No database for cursor store, using memory")
		s.cursors = memory.NewCursorRepo(s.memory())
	case config.StoreMemory:
		s.cursors = memory.NewCursorRepo(s.memory())
	default:
		s.close()
		return nil, fmt.Errorf("unknown cursor store %q", cfg.CursorStore)
	}

	return s, nil
}

func (s *stores) memory() *memory.MemoryStorage {
	if s.mem == nil {
		s.mem = memory.NewMemoryStorage()
	}
	return s.mem
}

func (s *stores) close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}

// OpenCursors connects the configured stores for operator commands and
// returns the cursor repository with a function releasing the connections.
func OpenCursors(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (storage.CursorRepository, func(), error) {
	s, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return s.cursors, s.close, nil
}
