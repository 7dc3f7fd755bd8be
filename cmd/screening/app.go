package main

import (
	"context"
	"fmt"

	"github.com/Aidin1998/watchlist_screening/internal/infrastructure/config"
	"github.com/Aidin1998/watchlist_screening/internal/infrastructure/database"
	"github.com/Aidin1998/watchlist_screening/internal/infrastructure/messaging"
	"github.com/Aidin1998/watchlist_screening/internal/screening/analytics"
	"github.com/Aidin1998/watchlist_screening/internal/screening/api"
	"github.com/Aidin1998/watchlist_screening/internal/screening/events"
	"github.com/Aidin1998/watchlist_screening/internal/screening/monitoring"
	"github.com/Aidin1998/watchlist_screening/internal/screening/providers"
	"github.com/Aidin1998/watchlist_screening/internal/screening/review"
	"github.com/Aidin1998/watchlist_screening/internal/screening/rules"
	"github.com/Aidin1998/watchlist_screening/internal/screening/scoring"
	"github.com/Aidin1998/watchlist_screening/internal/screening/service"
	"github.com/Aidin1998/watchlist_screening/internal/screening/storage"
	"github.com/Aidin1998/watchlist_screening/internal/screening/watchlist"
	"github.com/Aidin1998/watchlist_screening/pkg/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// application holds the wired components of the screening service
type application struct {
	store       storage.Store
	invalidator providers.Invalidator
	watchlist   *watchlist.Manager
	service     *service.Service
	dispatcher  *service.Dispatcher
	handlers    *api.Handlers
	registry    *prometheus.Registry
	checks      map[string]api.HealthCheck
	closers     []func() error
}

func build(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (*application, error) {
	sugar := zapLogger.Sugar()
	app := &application{checks: make(map[string]api.HealthCheck)}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewPrometheusMetrics(app.registry)

	store, err := openStore(cfg.Database, zapLogger, app)
	if err != nil {
		return nil, err
	}
	app.store = store

	bus := events.NewBus(sugar)
	eventsCh, unsubscribe := bus.Subscribe(1024)
	go events.Consume(eventsCh, func(e events.Event) { metrics.RecordEvent(string(e.Type)) })
	app.closers = append(app.closers, func() error {
		unsubscribe()
		return nil
	})
	publishers := events.Multi{bus, events.NewLogPublisher(sugar)}
	if cfg.Kafka.Enabled {
		kafkaPublisher := messaging.NewKafkaPublisher(messaging.NewKafkaWriter(cfg.Kafka), cfg.Kafka.Topic, sugar)
		publishers = append(publishers, kafkaPublisher)
		app.closers = append(app.closers, kafkaPublisher.Close)
		zapLogger.Info("Kafka event publishing enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	resilient := providers.NewResilientGateway(providers.NewStoreGateway(store), store, sugar, metrics)
	resilient.SetBackoff(cfg.Screening.RetryBackoff)
	var gateway providers.Gateway = resilient
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cached := providers.NewCachedGateway(resilient, providers.NewRedisCache(client, cfg.Redis.KeyPrefix), cfg.Redis.CacheTTL, sugar, metrics)
		gateway = cached
		app.invalidator = cached
		app.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		app.closers = append(app.closers, client.Close)
	}

	validator := validation.NewValidator()
	aggregator := analytics.NewAggregator(cfg.Screening.AnalyticsRetention)
	ruleEngine := rules.NewRuleEngine(sugar, publishers)
	ruleEngine.SetPrometheusMetrics(metrics)

	svc := service.NewService(service.Dependencies{
		Store:        store,
		Orchestrator: providers.NewOrchestrator(gateway, store, sugar, metrics),
		Rules:        ruleEngine,
		Scorer:       scoring.NewRiskScorer(),
		Analytics:    aggregator,
		Review:       review.NewWorkflow(store, aggregator, publishers, validator, metrics, sugar),
		Publisher:    publishers,
		Validator:    validator,
		Metrics:      metrics,
		Logger:       sugar,
	}, service.Config{Deadlines: cfg.Screening.PriorityDeadlines()})

	app.dispatcher = service.NewDispatcher(svc, cfg.Dispatcher.Workers, cfg.Dispatcher.QueueSize, sugar, metrics)
	app.dispatcher.SetPendingSource(store, cfg.Dispatcher.SweepInterval)
	svc.SetEnqueuer(app.dispatcher)
	app.service = svc

	app.watchlist = watchlist.NewManager(store, publishers, app.invalidator, sugar)
	app.handlers = api.NewHandlers(svc, app.watchlist, sugar)
	return app, nil
}

func openStore(cfg config.DatabaseConfig, zapLogger *zap.Logger, app *application) (storage.Store, error) {
	if cfg.Driver == "memory" {
		zapLogger.Warn("Using in-memory store, data is lost on restart")
		return storage.NewMemoryStore(), nil
	}

	db, err := database.Open(cfg, zapLogger)
	if err != nil {
		return nil, err
	}
	app.checks["database"] = database.Ping(db)
	app.closers = append(app.closers, func() error { return database.Close(db) })

	if !cfg.AutoMigrate {
		return storage.NewGormStoreWithoutMigration(db), nil
	}
	store, err := storage.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	return store, nil
}

// seed loads the rule set and the watchlist seed named in the configuration
func (app *application) seed(ctx context.Context, cfg config.ScreeningConfig) error {
	if cfg.RulesFile != "" {
		loaded, err := rules.LoadFile(cfg.RulesFile)
		if err != nil {
			return err
		}
		for _, rule := range loaded {
			if err := app.store.SaveRule(ctx, rule); err != nil {
				return fmt.Errorf("save rule %s: %w", rule.ID, err)
			}
		}
	}

	if cfg.WatchlistFile != "" {
		entities, err := watchlist.LoadSeedFile(cfg.WatchlistFile)
		if err != nil {
			return err
		}
		if _, err := app.watchlist.Import(ctx, entities); err != nil {
			return err
		}
	}
	return nil
}
