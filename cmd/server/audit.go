package main

import (
	"context"
	"errors"
	"log/slog"

	"titleregistry/internal/platform/config"
	"titleregistry/internal/platform/kafka"
	"titleregistry/internal/platform/postgres"
	"titleregistry/internal/platform/redis"
	httptransport "titleregistry/internal/transport/http"
	audit "titleregistry/pkg/platform/audit"
	"titleregistry/pkg/platform/audit/consumer"
	kafkastore "titleregistry/pkg/platform/audit/store/kafka"
	"titleregistry/pkg/platform/audit/store/memory"
	pgstore "titleregistry/pkg/platform/audit/store/postgres"
	"titleregistry/pkg/platform/audit/store/redisstream"
)

// auditSink is the configured operator audit backend. reader is nil when the
// backend cannot be queried back.
type auditSink struct {
	store   audit.Store
	reader  audit.Reader
	health  map[string]httptransport.HealthCheck
	closers []func()
}

func (s *auditSink) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openAuditSink(ctx context.Context, cfg config.Config, redisClient *redis.Client, log *slog.Logger) (*auditSink, error) {
	sink := &auditSink{health: map[string]httptransport.HealthCheck{}}

	switch cfg.Audit.Sink {
	case config.AuditSinkPostgres:
		store, err := openPostgresStore(ctx, cfg.Audit.DatabaseURL, sink)
		if err != nil {
			return nil, err
		}
		sink.store, sink.reader = store, store

	case config.AuditSinkRedis:
		if redisClient == nil {
			return nil, errors.New("audit sink redis requires REDIS_URL")
		}
		store := redisstream.New(redisClient.Client)
		sink.store, sink.reader = store, store

	case config.AuditSinkKafka:
		client, err := kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		sink.closers = append(sink.closers, client.Close)
		sink.health["kafka"] = client.Ping
		if err := kafkastore.EnsureTopics(ctx, kafka.Admin(client), cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
			sink.close()
			return nil, err
		}
		sink.store = kafkastore.New(client)
		// Events produced here come back through the consumer into Postgres,
		// which is what operators query.
		if cfg.Audit.DatabaseURL != "" {
			store, err := openPostgresStore(ctx, cfg.Audit.DatabaseURL, sink)
			if err != nil {
				sink.close()
				return nil, err
			}
			sink.reader = store
		}

	default:
		store := memory.NewInMemoryStore()
		sink.store, sink.reader = store, store
	}

	log.Info("audit sink ready", "sink", cfg.Audit.Sink, "queryable", sink.reader != nil)
	return sink, nil
}

func openPostgresStore(ctx context.Context, url string, sink *auditSink) (*pgstore.Store, error) {
	db, err := postgres.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	sink.closers = append(sink.closers, func() { _ = db.Close() })
	sink.health["postgres"] = db.PingContext

	store := pgstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// runAuditConsumer materializes the kafka audit topics into Postgres until
// ctx ends.
func runAuditConsumer(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.Audit.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	store := pgstore.New(db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	client, err := kafka.NewConsumer(cfg.Kafka, kafkastore.Topics()...)
	if err != nil {
		return err
	}
	defer client.Close()

	router := consumer.NewRouter(log, consumer.NewStoreHandler(store, audit.CategoryOperations, log))
	for _, category := range []audit.EventCategory{audit.CategoryCompliance, audit.CategorySecurity} {
		router.Register(kafkastore.TopicFor(category), consumer.NewStoreHandler(store, category, log))
	}

	log.Info("audit consumer started", "group", cfg.Kafka.GroupID, "topics", kafkastore.Topics())
	err = consumer.Run(ctx, client, router, log)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
