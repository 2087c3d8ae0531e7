package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/wager_layer/internal/app/collectible"
	"github.com/R3E-Network/wager_layer/internal/app/domain/wager"
	"github.com/R3E-Network/wager_layer/internal/app/protocol"
	"github.com/R3E-Network/wager_layer/internal/app/randomness"
	"github.com/R3E-Network/wager_layer/internal/app/randomness/local"
	"github.com/R3E-Network/wager_layer/internal/app/randomness/oracle"
	"github.com/R3E-Network/wager_layer/internal/app/randomness/vrf"
	wagersvc "github.com/R3E-Network/wager_layer/internal/app/services/wager"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	boltstore "github.com/R3E-Network/wager_layer/internal/app/storage/bolt"
	"github.com/R3E-Network/wager_layer/internal/app/storage/memory"
	"github.com/R3E-Network/wager_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/wager_layer/internal/app/system"
	"github.com/R3E-Network/wager_layer/internal/chain"
	"github.com/R3E-Network/wager_layer/internal/config"
	"github.com/R3E-Network/wager_layer/internal/engine/bus"
	"github.com/R3E-Network/wager_layer/internal/engine/events"
	"github.com/R3E-Network/wager_layer/internal/engine/metrics"
	"github.com/R3E-Network/wager_layer/internal/fixedpoint"
	"github.com/R3E-Network/wager_layer/internal/ledger"
	"github.com/R3E-Network/wager_layer/internal/platform/migrations"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Application ties the engine to its collaborators and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	closers []func() error

	Engine   *wagersvc.Service
	Registry *protocol.Registry
	Ledger   ledger.Ledger
	Heads    chain.HeadSource
	Events   *events.RingBuffer
	Metrics  *metrics.Collector
	Limits   *bus.BusLimiter
	Sweeper  *wagersvc.Sweeper
	// VRFNode is set when the verifiable provider is enabled.
	VRFNode  *vrf.Node
}

// New builds a fully initialised application from cfg.
func New(cfg *config.Config, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	a := &Application{
		manager: system.NewManager(),
		log:     log,
		Events:  events.NewRingBuffer(cfg.Events.BufferSize),
		Metrics: metrics.NewCollector(cfg.Metrics.Namespace),
		Limits:  bus.NewBusLimiter(),
	}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var db *sqlx.DB
	if cfg.Storage.Driver == config.DriverPostgres || cfg.Ledger.Driver == config.DriverPostgres {
		var err error
		if db, err = openDatabase(cfg.Storage); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Storage.Migrate {
			if err := migrations.Apply(db.DB); err != nil {
				return nil, err
			}
		}
	}

	store, err := a.buildStore(cfg.Storage, db)
	if err != nil {
		return nil, fmt.Errorf("configure entry store: %w", err)
	}
	if a.Ledger, err = a.buildLedger(cfg.Ledger, db); err != nil {
		return nil, fmt.Errorf("configure ledger: %w", err)
	}
	if a.Heads, err = buildHeads(cfg.Chain); err != nil {
		return nil, fmt.Errorf("configure chain: %w", err)
	}

	pc, err := cfg.BuildProtocol()
	if err != nil {
		return nil, err
	}
	if cfg.VRF.Enabled {
		if a.VRFNode, err = buildNode(cfg.VRF, log.Named("vrf-node")); err != nil {
			return nil, err
		}
		pc.Providers.VRF.PublicKey = a.VRFNode.PublicKey()
	}

	kinds := enabledKinds(cfg)
	if a.Registry, err = protocol.NewRegistry(pc,
		protocol.WithSupportedProviders(kinds...),
		protocol.WithLogger(log.Named("protocol")),
	); err != nil {
		return nil, err
	}

	a.Limits.Configure(bus.KindOracleSubmit, bus.LimiterConfig{
		MaxConcurrent:  cfg.Oracle.MaxConcurrent,
		AcquireTimeout: cfg.Oracle.Timeout,
		QueueSize:      256,
	})
	a.Limits.Configure(bus.KindOraclePoll, bus.LimiterConfig{
		MaxConcurrent:  cfg.Oracle.MaxConcurrent,
		AcquireTimeout: cfg.Oracle.Timeout,
	})
	a.Limits.Configure(bus.KindEventSink, bus.DefaultLimiterConfig())

	registry := a.Registry
	providers := []randomness.Provider{local.New(a.Heads)}
	if a.VRFNode != nil {
		providers = append(providers, vrf.New(a.VRFNode, func() protocol.VRFParams {
			return registry.Snapshot().Providers.VRF
		}))
	}
	if cfg.Oracle.Enabled {
		providers = append(providers, oracle.New(
			func() protocol.OracleParams { return registry.Snapshot().Providers.Oracle },
			oracle.WithHTTPClient(&http.Client{Timeout: cfg.Oracle.Timeout}),
			oracle.WithAPIKey(cfg.Oracle.APIKey),
			oracle.WithLimiter(a.Limits),
			oracle.WithLogger(log.Named("oracle-provider")),
		))
	}

	if a.Engine, err = wagersvc.New(wagersvc.Deps{
		Store:     store,
		Ledger:    a.Ledger,
		Issuer:    collectible.NewMemory(),
		Registry:  a.Registry,
		Heads:     a.Heads,
		Providers: randomness.NewSet(providers...),
		Events:    a.Events,
		Metrics:   a.Metrics,
	}, log.Named("wager")); err != nil {
		return nil, err
	}

	if err := a.manager.Register(system.NoopService{ServiceName: "wager-engine"}); err != nil {
		return nil, err
	}

	if a.VRFNode != nil {
		engine := a.Engine
		a.VRFNode.OnFulfil(func(ctx context.Context, requestID string, sig []byte) error {
			_, err := engine.FulfillVRF(ctx, requestID, sig)
			return err
		})
	}

	// Services stop in reverse order: the event sink is registered first so it
	// outlives everything that emits events.
	var services []system.Service
	if cfg.Events.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		sink := events.NewRedisSink(client, cfg.Events.Stream, cfg.Events.MaxLen, log.Named("events-redis")).
			WithLimiter(a.Limits)
		services = append(services, &attachedSink{RedisSink: sink, source: a.Events})
	}
	if a.VRFNode != nil {
		services = append(services, &vrfDrain{node: a.VRFNode})
	}

	a.Sweeper = wagersvc.NewSweeper(a.Engine, cfg.Sweeper.Schedule, log.Named("wager-sweeper"))
	services = append(services, a.Sweeper)

	if cfg.Oracle.Enabled && cfg.Oracle.Poll {
		resolver, err := oracle.NewHTTPResolver(&http.Client{Timeout: cfg.Oracle.Timeout},
			cfg.Oracle.Endpoint, cfg.Oracle.APIKey, cfg.Oracle.WordsPath, log.Named("oracle-resolver"))
		if err != nil {
			return nil, fmt.Errorf("configure oracle resolver: %w", err)
		}
		dispatcher := oracle.NewDispatcher(a.Engine, a.Engine.OracleSink(), func() string {
			return registry.Snapshot().Providers.Oracle.Identity
		}, log.Named("oracle-dispatcher")).
			WithResolver(resolver).
			WithInterval(cfg.Oracle.PollInterval).
			WithLimiter(a.Limits)
		services = append(services, dispatcher)
	} else if cfg.Oracle.Enabled {
		log.Warn("oracle polling disabled; waiting for pushed deliveries")
	}

	services = append(services, &busReporter{limits: a.Limits, metrics: a.Metrics, interval: 15 * time.Second})

	for _, svc := range services {
		if err := a.manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	ok = true
	return a, nil
}

func (a *Application) buildStore(cfg config.StorageConfig, db *sqlx.DB) (storage.EntryStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(db), nil
	case config.DriverBolt:
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return memory.New(), nil
	}
}

func (a *Application) buildLedger(cfg config.LedgerConfig, db *sqlx.DB) (ledger.Ledger, error) {
	if cfg.Driver == config.DriverPostgres {
		if len(cfg.Grants) > 0 {
			a.log.Warn("ledger grants are ignored by the postgres ledger")
		}
		return ledger.NewPostgres(db), nil
	}
	mem := ledger.NewMemory()
	for _, g := range cfg.Grants {
		amount, err := fixedpoint.ParseDecimal(g.Amount)
		if err != nil {
			return nil, fmt.Errorf("grant for %s: %w", g.Account, err)
		}
		if err := mem.Deposit(context.Background(), g.Account, amount, "grant"); err != nil {
			return nil, err
		}
		a.log.WithField("account", g.Account).WithField("amount", fixedpoint.Format(amount)).Info("ledger grant applied")
	}
	return mem, nil
}

func buildHeads(cfg config.ChainConfig) (chain.HeadSource, error) {
	switch cfg.Source {
	case config.ChainRPC:
		return chain.NewClient(chain.Config{RPCURL: cfg.RPCURL, NetworkID: cfg.NetworkID, Timeout: cfg.Timeout})
	case config.ChainManual:
		return chain.NewManual(cfg.StartHeight), nil
	default:
		return chain.NewClock(cfg.Genesis, cfg.BlockInterval, []byte(cfg.Salt)), nil
	}
}

func buildNode(cfg config.VRFConfig, log *logger.Logger) (*vrf.Node, error) {
	var node *vrf.Node
	if cfg.SecretKey != "" {
		var err error
		if node, err = vrf.NewNodeFromSecret(cfg.SecretKey, log); err != nil {
			return nil, err
		}
	} else {
		log.Warn("vrf.secret_key not set; generated an ephemeral key pair")
		node = vrf.NewNode(log)
	}
	return node.WithDelay(cfg.Delay), nil
}

func enabledKinds(cfg *config.Config) []wager.ProviderKind {
	kinds := []wager.ProviderKind{wager.ProviderLocal}
	if cfg.VRF.Enabled {
		kinds = append(kinds, wager.ProviderVRF)
	}
	if cfg.Oracle.Enabled {
		kinds = append(kinds, wager.ProviderOracle)
	}
	return kinds
}

func openDatabase(cfg config.StorageConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Services lists the managed services in start order.
func (a *Application) Services() []string {
	return a.manager.Services()
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and releases stores and connections.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	a.close()
	a.Limits.Close()
	return err
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close resource")
		}
	}
	a.closers = nil
}

// busReporter copies limiter stats into the metrics collector.
type busReporter struct {
	limits   *bus.BusLimiter
	metrics  *metrics.Collector
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (b *busReporter) Name() string { return "bus-metrics" }

func (b *busReporter) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(context.Background())
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			b.metrics.RecordBus(b.limits.Stats())
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (b *busReporter) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	return nil
}

// vrfDrain waits on Stop for in-flight VRF fulfilments, which settle entries
// and emit events.
type vrfDrain struct {
	node *vrf.Node
}

func (v *vrfDrain) Name() string { return "vrf-drain" }

func (v *vrfDrain) Start(context.Context) error { return nil }

func (v *vrfDrain) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		v.node.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attachedSink subscribes the redis sink only while it is running. Late
// events from a Log call already in flight are dropped by the sink.
type attachedSink struct {
	*events.RedisSink
	source events.EventLogger
	detach func()
}

func (s *attachedSink) Start(ctx context.Context) error {
	if err := s.RedisSink.Start(ctx); err != nil {
		return err
	}
	s.detach = s.RedisSink.Attach(s.source)
	return nil
}

func (s *attachedSink) Stop(ctx context.Context) error {
	if s.detach != nil {
		s.detach()
	}
	return s.RedisSink.Stop(ctx)
}
