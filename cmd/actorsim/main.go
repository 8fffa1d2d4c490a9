// Command actorsim assembles the actor core against concrete storage,
// bus, metrics and worker-pool backends and drives a short demonstration
// scenario against a counter aggregate. It exists so the core package is
// not a library with no entry point, mirroring the way every subsystem in
// this codebase is wired from its own cmd/*/main.go.
package main

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/ksuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/actorsourcing/internal/actor"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/bus"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/counter"
	actormetrics "github.com/abdoElHodaky/actorsourcing/internal/actor/metrics"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/observer"
	"github.com/abdoElHodaky/actorsourcing/internal/actor/stores/mem"
	"github.com/abdoElHodaky/actorsourcing/internal/config"
)

func main() {
	app := fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideMetricsRegistry,
			provideMetricsRecorder,
			provideEventLog,
			provideSnapshotStore,
			provideArchiveStore,
			provideObserverGroup,
			provideHandleCache,
			provideBus,
		),
		fx.Invoke(runDemo),
	)
	app.Run()
}

func provideConfig() (*config.Config, error) {
	return config.LoadConfig("")
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return config.InitLogger(cfg)
}

func provideMetricsRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetricsRecorder(reg *prometheus.Registry) *actormetrics.Recorder {
	return actormetrics.New(reg)
}

func provideEventLog(logger *zap.Logger) *mem.EventLog {
	return mem.NewEventLog(logger)
}

func provideSnapshotStore() *mem.SnapshotStore {
	return mem.NewSnapshotStore()
}

func provideArchiveStore() *mem.ArchiveStore {
	return mem.NewArchiveStore()
}

// provideObserverGroup builds a two-member observer group over a bounded
// ants pool, logging every delivered event through one member; the other
// ("read-model") has a no-op handler and only tracks its version cursor.
func provideObserverGroup(cfg *config.Config, logger *zap.Logger, lc fx.Lifecycle) (*observer.Group, error) {
	logged := observer.NewUnit("logger", func(ctx context.Context, event actor.FullyEvent, payload []byte) error {
		logger.Info("observer saw event",
			zap.String("actor_id", event.StateID.String()),
			zap.Int64("version", event.BasicInfo.Version))
		return nil
	})
	readModel := observer.NewUnit("read-model", func(ctx context.Context, event actor.FullyEvent, payload []byte) error {
		return nil
	})

	group, err := observer.NewGroup("demo-observers", cfg.ObserverPool.Size, []actor.ObserverUnit{logged, readModel}, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			group.Release()
			return nil
		},
	})
	return group, nil
}

// provideHandleCache backs the demo host's actor-handle lookup so repeated
// requests for the same actor identity within the TTL window skip
// re-activation. It holds handleCacheEntry values keyed by ID string.
func provideHandleCache(cfg *config.Config) *cache.Cache {
	ttl := time.Duration(cfg.HandleCache.TTLSeconds) * time.Second
	return cache.New(ttl, 2*ttl)
}

// provideBus attempts to connect the NATS-backed bus; a dial failure is
// logged and demoted to a nil bus rather than aborting startup, since the
// core already knows how to fall back to synchronous observer fan-out when
// the bus is unavailable.
func provideBus(cfg *config.Config, logger *zap.Logger, lc fx.Lifecycle) actor.Bus {
	busCfg := bus.DefaultConfig()
	busCfg.URL = cfg.Bus.NatsURL
	busCfg.SubjectPrefix = cfg.Bus.SubjectPrefix

	b, err := bus.New(busCfg, logger)
	if err != nil {
		logger.Warn("bus unavailable, actors will fall back to observer fan-out", zap.Error(err))
		return nil
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return b.Close()
		},
	})
	return b
}

// handleCacheEntry is the handle cache's value type: it holds a live actor
// handle.
type handleCacheEntry struct {
	handle *actor.Actor
}

// runDemo activates one counter actor, raises a handful of deposits (each
// tagged with a ksuid correlation id for traceable logging, distinct from
// the deterministic sha256 de-duplication key used internally), checks the
// handle cache on a repeat lookup, then deactivates.
func runDemo(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *actormetrics.Recorder,
	eventLog *mem.EventLog,
	snapStore *mem.SnapshotStore,
	archiveStore *mem.ArchiveStore,
	observers *observer.Group,
	handleCache *cache.Cache,
	b actor.Bus,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return demoScenario(ctx, cfg, logger, metrics, eventLog, snapStore, archiveStore, observers, handleCache, b)
		},
	})
}

func demoScenario(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *actormetrics.Recorder,
	eventLog *mem.EventLog,
	snapStore *mem.SnapshotStore,
	archiveStore *mem.ArchiveStore,
	observers *observer.Group,
	handleCache *cache.Cache,
	b actor.Bus,
) error {
	id := actor.NewStringID("demo-ledger-1")

	handle, err := getOrActivate(ctx, id, cfg, logger, metrics, eventLog, snapStore, archiveStore, observers, handleCache, b)
	if err != nil {
		return err
	}

	for i := 0; i < 5; i++ {
		correlationID := ksuid.New()
		ok, err := handle.Raise(ctx, counter.Deposited{Delta: 10}, nil)
		if err != nil {
			logger.Error("raise failed", zap.String("correlation_id", correlationID.String()), zap.Error(err))
			return err
		}
		logger.Info("raised deposit",
			zap.String("correlation_id", correlationID.String()),
			zap.Bool("applied", ok),
			zap.Int64("version", handle.Version()),
			zap.Any("total", handle.Payload()))
	}

	// A second lookup within the TTL window is served from the cache
	// instead of re-activating against storage.
	again, err := getOrActivate(ctx, id, cfg, logger, metrics, eventLog, snapStore, archiveStore, observers, handleCache, b)
	if err != nil {
		return err
	}
	logger.Info("repeat lookup", zap.Int64("version", again.Version()))

	return again.Deactivate(ctx)
}

func getOrActivate(
	ctx context.Context,
	id actor.ID,
	cfg *config.Config,
	logger *zap.Logger,
	metrics *actormetrics.Recorder,
	eventLog *mem.EventLog,
	snapStore *mem.SnapshotStore,
	archiveStore *mem.ArchiveStore,
	observers *observer.Group,
	handleCache *cache.Cache,
	b actor.Bus,
) (*actor.Actor, error) {
	if cached, found := handleCache.Get(id.String()); found {
		entry := cached.(handleCacheEntry)
		logger.Debug("handle cache hit", zap.String("actor_id", id.String()))
		return entry.handle, nil
	}

	deps := actor.Deps{
		Applier:       counter.Applier{},
		EventLog:      eventLog,
		SnapshotStore: snapStore,
		ArchiveStore:  archiveStore,
		Bus:           b,
		Observers:     []actor.ObserverUnit{observers},
		Logger:        logger,
		Metrics:       metrics,
		TypeCode:      1,
	}

	handle, err := actor.New(id, "counter", cfg.ToActorOptions(), deps)
	if err != nil {
		return nil, err
	}
	if err := handle.Activate(ctx); err != nil {
		return nil, err
	}

	handleCache.Set(id.String(), handleCacheEntry{handle: handle}, cache.DefaultExpiration)
	return handle, nil
}
