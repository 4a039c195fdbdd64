package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Settlement   SettlementConfig
	Provisioning ProvisioningConfig
	RateLimiter  RateLimiterConfig
	Notifier     NotifierConfig
	Tracing      TracingConfig
}

type AppConfig struct {
	LogLevel        string        `env:"LOG_LEVEL"        env-default:"info"`
	LogFormat       string        `env:"LOG_FORMAT"       env-default:"json"`
	LogFile         string        `env:"LOG_FILE"         env-default:""`
	LogMaxSizeMB    int           `env:"LOG_MAX_SIZE_MB"  env-default:"10"`
	OpsAddress      string        `env:"OPS_ADDRESS"      env-default:":9090"`
	HealthAddress   string        `env:"HEALTH_ADDRESS"   env-default:":50051"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// PostgresConfig selects the durable store. An empty DSN runs on the in-memory store.
type PostgresConfig struct {
	DSN          string        `env:"EXCHANGE_DB_URI"           env-default:""`
	CheckTimeout time.Duration `env:"EXCHANGE_DB_CHECK_TIMEOUT" env-default:"2s"`
	MaxConns     int32         `env:"EXCHANGE_DB_MAX_CONNS"     env-default:"10"`
}

type RedisConfig struct {
	Host              string        `env:"REDIS_HOST"               env-default:""`
	Port              int           `env:"REDIS_PORT"               env-default:"6379"`
	Password          string        `env:"REDIS_PASSWORD"           env-default:""`
	DB                int           `env:"REDIS_DB"                 env-default:"0"`
	ConnectionTimeout time.Duration `env:"REDIS_CONNECTION_TIMEOUT" env-default:"2s"`
	PriceTTL          time.Duration `env:"REDIS_PRICE_TTL"          env-default:"10m"`
}

func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers            []string `env:"KAFKA_BROKERS"              env-separator:","`
	OrderExecutedTopic string   `env:"KAFKA_ORDER_EXECUTED_TOPIC" env-default:"orders.executed"`
	NotificationTopic  string   `env:"KAFKA_NOTIFICATION_TOPIC"   env-default:"exchange.notifications"`
	ConsumerGroup      string   `env:"KAFKA_CONSUMER_GROUP"       env-default:"settlement-handler"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type SettlementConfig struct {
	ConflictRetries   int           `env:"SETTLEMENT_CONFLICT_RETRIES"   env-default:"3"`
	Workers           int           `env:"SETTLEMENT_WORKERS"            env-default:"4"`
	QueueSize         int           `env:"SETTLEMENT_QUEUE_SIZE"         env-default:"1024"`
	PriceInboxSize    int           `env:"SETTLEMENT_PRICE_INBOX_SIZE"   env-default:"256"`
	ReconcileInterval time.Duration `env:"SETTLEMENT_RECONCILE_INTERVAL" env-default:"1m"`
	ReconcileBatch    int           `env:"SETTLEMENT_RECONCILE_BATCH"    env-default:"100"`
}

type ProvisioningConfig struct {
	InitialBalance string        `env:"PROVISIONING_INITIAL_BALANCE" env-default:"1000000"`
	Attempts       uint64        `env:"PROVISIONING_ATTEMPTS"        env-default:"3"`
	Delay          time.Duration `env:"PROVISIONING_DELAY"           env-default:"2s"`
}

// Balance returns InitialBalance parsed; Validate guarantees it parses.
func (p ProvisioningConfig) Balance() decimal.Decimal {
	balance, err := decimal.NewFromString(p.InitialBalance)
	if err != nil {
		return decimal.Zero
	}
	return balance
}

type RateLimiterConfig struct {
	PlaceOrder int64         `env:"RATE_LIMIT_PLACE_ORDER" env-default:"20"`
	Window     time.Duration `env:"RATE_LIMIT_WINDOW"      env-default:"1s"`
}

type NotifierConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type CircuitBreakerConfig struct {
	MaxRequests uint32        `env:"CB_MAX_REQUESTS" env-default:"3"`
	Interval    time.Duration `env:"CB_INTERVAL"     env-default:"10s"`
	Timeout     time.Duration `env:"CB_TIMEOUT"      env-default:"5s"`
	MaxFailures uint32        `env:"CB_MAX_FAILURES" env-default:"5"`
}

// TracingConfig controls span sampling. Finished spans are written to the log.
type TracingConfig struct {
	Enabled     bool    `env:"TRACING_ENABLED"      env-default:"true"`
	ServiceName string  `env:"TRACING_SERVICE_NAME" env-default:"trading-hub"`
	SampleRatio float64 `env:"TRACING_SAMPLE_RATIO" env-default:"1"`
}

// Load reads path when given, otherwise the process environment only.
func Load(path string) (*Config, error) {
	config := &Config{}

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, config)
	} else {
		err = cleanenv.ReadEnv(config)
	}
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	balance, err := decimal.NewFromString(c.Provisioning.InitialBalance)
	if err != nil {
		return fmt.Errorf("initial balance %q: %w", c.Provisioning.InitialBalance, err)
	}
	if balance.IsNegative() {
		return fmt.Errorf("initial balance must not be negative")
	}
	if c.Provisioning.Attempts == 0 {
		return fmt.Errorf("provisioning attempts must be positive")
	}
	if c.Settlement.Workers <= 0 {
		return fmt.Errorf("settlement workers must be positive")
	}
	if c.Settlement.ConflictRetries < 0 {
		return fmt.Errorf("conflict retries must not be negative")
	}
	if c.RateLimiter.PlaceOrder <= 0 || c.RateLimiter.Window <= 0 {
		return fmt.Errorf("rate limiter limit and window must be positive")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be within [0, 1]")
	}

	return nil
}
