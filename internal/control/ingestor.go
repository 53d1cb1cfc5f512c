// Package control wires the stream pollers, storage and health servers into one service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cyl19970726/haigo-sub001/internal/core/config"
	"github.com/cyl19970726/haigo-sub001/internal/core/cursor"
	"github.com/cyl19970726/haigo-sub001/internal/core/domain"
	"github.com/cyl19970726/haigo-sub001/internal/core/worker"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/health"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/indexer"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/mapper"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/metrics"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/recovery"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/streams"
	"github.com/cyl19970726/haigo-sub001/internal/indexing/throttle"
	"github.com/cyl19970726/haigo-sub001/internal/infra/chain/aptos"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/provider"
	"github.com/cyl19970726/haigo-sub001/internal/infra/rpc/routing"
)

const shutdownTimeout = 15 * time.Second

// Ingestor owns the pollers of all enabled streams and their shared services.
type Ingestor struct {
	cfg        *config.AppConfig
	stores     *stores
	cursor     cursor.Manager
	fullnode   *aptos.FullnodeClient
	pipelines  map[string]*indexer.Pipeline
	pools      map[string]*routing.EndpointPool[*provider.HTTPProvider]
	order      []string
	monitor    *health.Monitor
	httpHealth *health.Server
	grpcHealth *health.GRPCServer
	pruner     *worker.Pruner
	log        *slog.Logger
}

// NewIngestor creates an Ingestor with all dependencies initialized.
func NewIngestor(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) (*Ingestor, error) {
	if log == nil {
		log = slog.Default()
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	ing, err := build(cfg, st, log)
	if err != nil {
		st.close()
		return nil, err
	}
	return ing, nil
}

func build(cfg *config.AppConfig, st *stores, log *slog.Logger) (*Ingestor, error) {
	recorder := metrics.NewRecorder()

	nodeProvider := provider.NewHTTPProvider("fullnode", cfg.Aptos.NodeAPIURL, cfg.Aptos.APIKey, cfg.Aptos.RequestTimeout)
	fullnode, err := aptos.NewFullnodeClient(nodeProvider, cfg.Aptos.TxnCacheSize, recorder, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init fullnode client: %w", err)
	}

	cursorMgr := cursor.NewManager(st.cursors, fullnode, log)
	cursorMgr.SetStateChangeCallback(func(stream string, t cursor.Transition) {
		log.Debug("Poller state changed", "stream", stream, "from", t.From, "to", t.To, "reason", t.Reason)
	})

	skips := recovery.NewHandler(st.skipped)
	module := cfg.Aptos.ModuleAddress

	handlers := map[string]indexer.Handler{
		domain.StreamAccounts:      streams.NewAccounts(mapper.NewAccountMapper(module, fullnode, log), st.accounts),
		domain.StreamOrdersCreated: streams.NewOrders(mapper.NewOrderMapper(module, fullnode, log), st.orders),
		domain.StreamStaking:       streams.NewStaking(mapper.NewStakingMapper(module), st.staking),
	}

	ing := &Ingestor{
		cfg:       cfg,
		stores:    st,
		cursor:    cursorMgr,
		fullnode:  fullnode,
		pipelines: make(map[string]*indexer.Pipeline),
		pools:     make(map[string]*routing.EndpointPool[*provider.HTTPProvider]),
		log:       log,
	}

	byName := cfg.Streams.ByName()
	for _, stream := range domain.Streams {
		sc := byName[stream]
		if !sc.Enabled {
			log.Info("Listener disabled", "stream", stream)
			continue
		}

		pool := newIndexerPool(stream, cfg.IndexerURLs(sc), cfg)
		client, err := aptos.NewIndexerClient(pool, log)
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", stream, err)
		}

		pipeline, err := indexer.NewPipeline(indexer.Config{
			Stream:   stream,
			Handler:  handlers[stream],
			Fetcher:  client,
			Cursor:   cursorMgr,
			Backoff:  throttle.NewController(stream, cfg.Backoff, pool, recorder, log),
			Recovery: skips,
			Metrics:  recorder,
			Start: cursor.StartOptions{
				FromLatest:     sc.StartFromLatest,
				OffsetVersions: sc.BackfillOffsetVersions,
			},
			Interval:        sc.Interval,
			PageSize:        sc.PageSize,
			MaxPagesPerTick: sc.MaxPagesPerTick,
			PageDelay:       sc.PageDelay,
			Logger:          log,
		})
		if err != nil {
			return nil, fmt.Errorf("stream %s: %w", stream, err)
		}

		ing.pipelines[stream] = pipeline
		ing.pools[stream] = pool
		ing.order = append(ing.order, stream)
		log.Info("Listener configured",
			"stream", stream,
			"endpoints", pool.Endpoints(),
			"interval", sc.Interval,
			"page_size", sc.PageSize,
			"max_pages", sc.MaxPagesPerTick,
		)
	}

	sources := make([]health.StatusSource, 0, len(ing.order))
	for _, stream := range ing.order {
		sources = append(sources, ing.pipelines[stream])
	}
	ing.monitor = health.NewMonitor(sources, skips, fullnode, cfg.Health).WithProgress(cursorMgr)
	for stream, pool := range ing.pools {
		ing.monitor.WithEndpoints(stream, pool)
	}
	if st.db != nil {
		ing.monitor.WithDatabase(st.db)
	}
	ing.httpHealth = health.NewServer(ing.monitor, cfg.Server.Port)
	if cfg.Server.GRPCPort > 0 {
		ing.grpcHealth = health.NewGRPCServer(ing.monitor, cfg.Server.GRPCPort, cfg.Health.CacheTTL, log)
	}
	ing.pruner = worker.NewPruner(cfg.SkippedRetention, st.skipped, log)

	return ing, nil
}

func newIndexerPool(stream string, urls []string, cfg *config.AppConfig) *routing.EndpointPool[*provider.HTTPProvider] {
	providers := make([]*provider.HTTPProvider, 0, len(urls))
	for i, u := range urls {
		name := fmt.Sprintf("%s-indexer-%d", stream, i)
		providers = append(providers, provider.NewHTTPProvider(name, u, cfg.Aptos.APIKey, cfg.Aptos.RequestTimeout))
	}
	return routing.NewEndpointPool(providers...)
}

// Streams returns the names of the enabled streams.
func (i *Ingestor) Streams() []string {
	return append([]string(nil), i.order...)
}

// Pipeline returns the poller of a stream.
func (i *Ingestor) Pipeline(stream string) (*indexer.Pipeline, bool) {
	p, ok := i.pipelines[stream]
	return p, ok
}

// Monitor returns the health monitor.
func (i *Ingestor) Monitor() *health.Monitor {
	return i.monitor
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. Pollers finish their in-flight tick before Run returns.
func (i *Ingestor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, stream := range i.order {
		p := i.pipelines[stream]
		g.Go(func() error {
			i.log.Info("Starting listener", "stream", stream)
			return p.Start(gctx)
		})
	}

	g.Go(func() error {
		if err := i.httpHealth.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return i.httpHealth.Stop(shutdownCtx)
	})

	if i.grpcHealth != nil {
		g.Go(func() error {
			return i.grpcHealth.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			i.grpcHealth.Stop()
			return nil
		})
	}

	g.Go(func() error {
		i.pruner.Start(gctx)
		return nil
	})

	if i.stores.db != nil {
		i.stores.db.StartMetricsCollector(gctx)
	}

	i.log.Info("Ingestor started", "streams", i.order, "port", i.cfg.Server.Port)
	return g.Wait()
}

// Close releases storage connections. Call it after Run has returned.
func (i *Ingestor) Close() {
	i.stores.close()
}
