package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"github.com/nastyazhadan/trading-hub/internal/infrastructure/events"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/kafka"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/notifier"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/postgres"
	"github.com/nastyazhadan/trading-hub/internal/infrastructure/ratelimit"
	repoRedis "github.com/nastyazhadan/trading-hub/internal/infrastructure/redis"
	"github.com/nastyazhadan/trading-hub/internal/metrics"
	"github.com/nastyazhadan/trading-hub/internal/repository"
	"github.com/nastyazhadan/trading-hub/internal/services/matching"
	svcOrder "github.com/nastyazhadan/trading-hub/internal/services/order"
	svcPortfolio "github.com/nastyazhadan/trading-hub/internal/services/portfolio"
	"github.com/nastyazhadan/trading-hub/internal/services/settlement"
	"github.com/nastyazhadan/trading-hub/internal/storage/memory"
	"github.com/nastyazhadan/trading-hub/internal/workers"
	"github.com/nastyazhadan/trading-hub/migrations"
	"github.com/nastyazhadan/trading-hub/shared/config"
	"github.com/nastyazhadan/trading-hub/shared/infra/closer"
	"github.com/nastyazhadan/trading-hub/shared/infra/db"
	"github.com/nastyazhadan/trading-hub/shared/infra/health"
	"github.com/nastyazhadan/trading-hub/shared/infra/redis"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

type DiContainer struct {
	cfg config.Config

	store         repository.Store
	kafkaProducer sarama.SyncProducer
	kafkaGroup    sarama.ConsumerGroup

	metrics     *metrics.Metrics
	metricsOnce sync.Once

	redisClient     redis.Client
	redisClientOnce sync.Once

	priceCache     repository.PriceCache
	priceCacheOnce sync.Once

	rateLimiter     svcOrder.RateLimiter
	rateLimiterOnce sync.Once

	pool     *workers.Pool
	poolOnce sync.Once

	notifier     *notifier.Notifier
	notifierOnce sync.Once

	publisher     settlement.EventPublisher
	publisherOnce sync.Once

	bus *events.Bus

	evaluator     *matching.Evaluator
	evaluatorOnce sync.Once

	coordinator     *settlement.Coordinator
	coordinatorOnce sync.Once

	executedHandler     *settlement.ExecutedHandler
	executedHandlerOnce sync.Once

	reconciler     *settlement.Reconciler
	reconcilerOnce sync.Once

	trigger     *matching.Trigger
	triggerOnce sync.Once

	consumer     *kafka.Consumer
	consumerOnce sync.Once

	orderService     *svcOrder.Service
	orderServiceOnce sync.Once

	portfolioService     *svcPortfolio.Service
	portfolioServiceOnce sync.Once

	provisioner     *svcPortfolio.Provisioner
	provisionerOnce sync.Once

	healthServer     *health.Server
	healthServerOnce sync.Once
}

// NewDIContainer opens the resources that can fail up front: the store and,
// when brokers are configured, the Kafka clients. Everything else is built
// on first use.
func NewDIContainer(ctx context.Context, cfg config.Config) (*DiContainer, error) {
	container := &DiContainer{cfg: cfg}

	store, err := openStore(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	container.store = store

	if cfg.Kafka.Enabled() {
		if err := container.openKafka(); err != nil {
			return nil, err
		}
	}

	// Building the handler attaches it to the in-process bus.
	container.ExecutedHandler()

	return container, nil
}

func openStore(ctx context.Context, cfg config.PostgresConfig) (repository.Store, error) {
	if cfg.DSN == "" {
		zapLogger.Info(ctx, "DSN is empty, using in-memory store")
		return memory.NewStore(), nil
	}

	pool, err := db.SetupDB(ctx, cfg.DSN, migrations.Migrations, db.Options{MaxConns: cfg.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("db.SetupDB: %w", err)
	}
	closer.AddNamed("postgres pool", func(context.Context) error {
		pool.Close()
		return nil
	})

	return postgres.NewStore(pool), nil
}

func (d *DiContainer) openKafka() error {
	producer, err := sarama.NewSyncProducer(d.cfg.Kafka.Brokers, kafka.NewConfig("trading-hub-producer"))
	if err != nil {
		return fmt.Errorf("sarama.NewSyncProducer: %w", err)
	}
	closer.AddNamed("kafka producer", func(context.Context) error {
		return producer.Close()
	})

	group, err := sarama.NewConsumerGroup(
		d.cfg.Kafka.Brokers,
		d.cfg.Kafka.ConsumerGroup,
		kafka.NewConfig("trading-hub-consumer"),
	)
	if err != nil {
		return fmt.Errorf("sarama.NewConsumerGroup: %w", err)
	}

	d.kafkaProducer = producer
	d.kafkaGroup = group

	return nil
}

func (d *DiContainer) Store() repository.Store {
	return d.store
}

func (d *DiContainer) Metrics() *metrics.Metrics {
	d.metricsOnce.Do(func() {
		d.metrics = metrics.New()
	})

	return d.metrics
}

// RedisClient is nil when Redis is not configured.
func (d *DiContainer) RedisClient() redis.Client {
	d.redisClientOnce.Do(func() {
		if !d.cfg.Redis.Enabled() {
			return
		}

		d.redisClient = redis.NewClient(redis.Options{
			Address:           d.cfg.Redis.Address(),
			Password:          d.cfg.Redis.Password,
			DB:                d.cfg.Redis.DB,
			ConnectionTimeout: d.cfg.Redis.ConnectionTimeout,
		}, zapLogger.Logger())
		closer.AddNamed("redis client", func(context.Context) error {
			return d.redisClient.Close()
		})
	})

	return d.redisClient
}

func (d *DiContainer) PriceCache() repository.PriceCache {
	d.priceCacheOnce.Do(func() {
		if client := d.RedisClient(); client != nil {
			d.priceCache = repoRedis.NewPriceCache(client)
			return
		}
		d.priceCache = memory.NewPriceCache()
	})

	return d.priceCache
}

func (d *DiContainer) RateLimiter() svcOrder.RateLimiter {
	d.rateLimiterOnce.Do(func() {
		limit := d.cfg.RateLimiter
		if client := d.RedisClient(); client != nil {
			d.rateLimiter = repoRedis.NewOrderRateLimiter(client, limit.PlaceOrder, limit.Window)
			return
		}
		d.rateLimiter = ratelimit.NewLocalLimiter(limit.PlaceOrder, limit.Window)
	})

	return d.rateLimiter
}

func (d *DiContainer) Pool() *workers.Pool {
	d.poolOnce.Do(func() {
		d.pool = workers.NewPool("background", d.cfg.Settlement.Workers, d.cfg.Settlement.QueueSize)
		d.pool.OnDone(d.Metrics().BackgroundTask)
	})

	return d.pool
}

func (d *DiContainer) Notifier() *notifier.Notifier {
	d.notifierOnce.Do(func() {
		var sink notifier.Sink = notifier.LogSink{}
		if d.kafkaProducer != nil {
			sink = kafka.NewNotificationSink(d.kafkaProducer, d.cfg.Kafka.NotificationTopic)
		}
		d.notifier = notifier.New(sink, d.cfg.Notifier.CircuitBreaker, d.Metrics())
	})

	return d.notifier
}

// Publisher sends OrderExecuted to Kafka when brokers are configured,
// otherwise to the in-process bus on the worker pool.
func (d *DiContainer) Publisher() settlement.EventPublisher {
	d.publisherOnce.Do(func() {
		if d.kafkaProducer != nil {
			d.publisher = kafka.NewPublisher(d.kafkaProducer, d.cfg.Kafka.OrderExecutedTopic)
			return
		}
		d.bus = events.NewBus(d.Pool())
		d.publisher = d.bus
	})

	return d.publisher
}

func (d *DiContainer) Evaluator() *matching.Evaluator {
	d.evaluatorOnce.Do(func() {
		d.evaluator = matching.NewEvaluator(d.store.Orders())
	})

	return d.evaluator
}

func (d *DiContainer) Coordinator() *settlement.Coordinator {
	d.coordinatorOnce.Do(func() {
		d.coordinator = settlement.NewCoordinator(
			d.store,
			d.Evaluator(),
			d.Notifier(),
			d.Publisher(),
			d.Metrics(),
			d.cfg.Settlement.ConflictRetries,
		)
	})

	return d.coordinator
}

func (d *DiContainer) ExecutedHandler() *settlement.ExecutedHandler {
	d.executedHandlerOnce.Do(func() {
		d.executedHandler = settlement.NewExecutedHandler(d.Coordinator(), d.Notifier())
		if d.bus != nil {
			d.bus.Subscribe(d.executedHandler)
		}
	})

	return d.executedHandler
}

func (d *DiContainer) Reconciler() *settlement.Reconciler {
	d.reconcilerOnce.Do(func() {
		d.reconciler = settlement.NewReconciler(
			d.store.Orders(),
			d.ExecutedHandler(),
			d.Metrics(),
			d.cfg.Settlement.ReconcileInterval,
			d.cfg.Settlement.ReconcileBatch,
		)
	})

	return d.reconciler
}

func (d *DiContainer) Trigger() *matching.Trigger {
	d.triggerOnce.Do(func() {
		d.trigger = matching.NewTrigger(
			d.Coordinator(),
			d.PriceCache(),
			d.cfg.Settlement.PriceInboxSize,
			d.cfg.Redis.PriceTTL,
		)
	})

	return d.trigger
}

// Consumer is nil when Kafka is not configured.
func (d *DiContainer) Consumer() *kafka.Consumer {
	d.consumerOnce.Do(func() {
		if d.kafkaGroup == nil {
			return
		}
		d.consumer = kafka.NewConsumer(d.kafkaGroup, d.cfg.Kafka.OrderExecutedTopic, d.ExecutedHandler())
	})

	return d.consumer
}

func (d *DiContainer) OrderService() *svcOrder.Service {
	d.orderServiceOnce.Do(func() {
		d.orderService = svcOrder.NewService(
			d.store,
			d.RateLimiter(),
			d.Notifier(),
			d.Publisher(),
			d.Metrics(),
			d.cfg.Settlement.ConflictRetries,
		)
	})

	return d.orderService
}

func (d *DiContainer) PortfolioService() *svcPortfolio.Service {
	d.portfolioServiceOnce.Do(func() {
		d.portfolioService = svcPortfolio.NewService(d.store.Portfolios(), d.store.Settlements(), d.store)
	})

	return d.portfolioService
}

func (d *DiContainer) Provisioner() *svcPortfolio.Provisioner {
	d.provisionerOnce.Do(func() {
		d.provisioner = svcPortfolio.NewProvisioner(
			d.store.Portfolios(),
			d.store.Remediations(),
			d.Pool(),
			d.Metrics(),
			svcPortfolio.ProvisionerConfig{
				InitialBalance: d.cfg.Provisioning.Balance(),
				Attempts:       d.cfg.Provisioning.Attempts,
				Delay:          d.cfg.Provisioning.Delay,
			},
		)
	})

	return d.provisioner
}

func (d *DiContainer) HealthServer() *health.Server {
	d.healthServerOnce.Do(func() {
		checkers := map[string]health.Checker{
			"store": d.store,
		}
		if client := d.RedisClient(); client != nil {
			checkers["redis"] = client
		}
		d.healthServer = health.NewServer(d.cfg.Postgres.CheckTimeout, checkers)
	})

	return d.healthServer
}
