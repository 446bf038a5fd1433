package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/medistore/internal/service/ordering"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Брокеры для outbox relay.
const (
	BrokerNone     = "none"
	BrokerKafka    = "kafka"
	BrokerRabbitMQ = "rabbitmq"
)

// Хранилища ключей идемпотентности.
const (
	IdempotencyStoreStorage = "storage"
	IdempotencyStoreRedis   = "redis"
)

const envPrefix = "MEDISTORE_"

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	PriceSource         ordering.PriceSource
	OrderNumberAttempts int

	Broker              string
	KafkaBrokers        []string
	RabbitMQURL         string
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int
	OutboxRetryDelay    time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	IdempotencyStore            string
	RedisAddr                   string
	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	OTelEndpoint string
	OTelInsecure bool
	LogLevel     log.Level

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PriceSource:                 ordering.PriceFromRequest,
		OrderNumberAttempts:         5,
		Broker:                      BrokerNone,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           5,
		OutboxRetryDelay:            500 * time.Millisecond,
		BreakerMaxFailures:          5,
		BreakerResetTimeout:         30 * time.Second,
		IdempotencyStore:            IdempotencyStoreStorage,
		RedisAddr:                   "localhost:6379",
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  15 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		OTelInsecure:                true,
		LogLevel:                    log.InfoLevel,
		ShutdownTimeout:             5 * time.Second,
	}
}

// LoadConfigFromEnv накладывает переменные MEDISTORE_* на DefaultConfig и проверяет результат.
func LoadConfigFromEnv() (Config, error) {
	return loadConfig(os.LookupEnv)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) value(name string) (string, bool) {
	raw, ok := r.lookup(envPrefix + name)
	raw = strings.TrimSpace(raw)
	return raw, ok && raw != ""
}

func (r *envReader) setString(name string, dst *string) {
	if raw, ok := r.value(name); ok {
		*dst = raw
	}
}

func (r *envReader) setInt(name string, dst *int) {
	raw, ok := r.value(name)
	if !ok {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = v
}

func (r *envReader) setBool(name string, dst *bool) {
	raw, ok := r.value(name)
	if !ok {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = v
}

func (r *envReader) setDuration(name string, dst *time.Duration) {
	raw, ok := r.value(name)
	if !ok {
		return
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
		return
	}
	*dst = v
}

func (r *envReader) parse(name string, parse func(string) error) {
	raw, ok := r.value(name)
	if !ok {
		return
	}
	if err := parse(raw); err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
	}
}

func loadConfig(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	r := &envReader{lookup: lookup}

	r.setString("HTTP_ADDR", &cfg.HTTPAddr)
	r.setString("GRPC_ADDR", &cfg.GRPCAddr)
	r.setString("METRICS_ADDR", &cfg.MetricsAddr)

	r.setString("STORAGE_DRIVER", &cfg.StorageDriver)
	r.setString("POSTGRES_DSN", &cfg.PostgresDSN)
	r.setBool("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)

	r.parse("PRICE_SOURCE", func(raw string) (err error) {
		cfg.PriceSource, err = ordering.ParsePriceSource(raw)
		return err
	})
	r.setInt("ORDER_NUMBER_ATTEMPTS", &cfg.OrderNumberAttempts)

	r.setString("BROKER", &cfg.Broker)
	r.parse("KAFKA_BROKERS", func(raw string) error {
		cfg.KafkaBrokers = splitList(raw)
		return nil
	})
	r.setString("RABBITMQ_URL", &cfg.RabbitMQURL)
	r.setDuration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	r.setInt("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	r.setInt("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	r.setDuration("OUTBOX_RETRY_BASE_DELAY", &cfg.OutboxRetryDelay)
	r.setInt("OUTBOX_BREAKER_FAILURES", &cfg.BreakerMaxFailures)
	r.setDuration("OUTBOX_BREAKER_RESET", &cfg.BreakerResetTimeout)

	r.setString("IDEMPOTENCY_STORE", &cfg.IdempotencyStore)
	r.setString("REDIS_ADDR", &cfg.RedisAddr)
	r.setDuration("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	r.setDuration("IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	r.setInt("IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	r.setString("OTEL_ENDPOINT", &cfg.OTelEndpoint)
	r.setBool("OTEL_INSECURE", &cfg.OTelInsecure)
	r.parse("LOG_LEVEL", func(raw string) (err error) {
		cfg.LogLevel, err = log.ParseLevel(raw)
		return err
	})
	r.setDuration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if len(r.errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %w", errors.Join(r.errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage requires MEDISTORE_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	switch c.Broker {
	case BrokerNone:
	case BrokerKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka broker requires MEDISTORE_KAFKA_BROKERS"))
		}
	case BrokerRabbitMQ:
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("rabbitmq broker requires MEDISTORE_RABBITMQ_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported broker %q", c.Broker))
	}

	switch c.IdempotencyStore {
	case IdempotencyStoreStorage:
	case IdempotencyStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis idempotency store requires MEDISTORE_REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported idempotency store %q", c.IdempotencyStore))
	}

	if c.HTTPAddr == "" || c.GRPCAddr == "" || c.MetricsAddr == "" {
		errs = append(errs, errors.New("listener addresses must not be empty"))
	}
	if c.OrderNumberAttempts <= 0 {
		errs = append(errs, errors.New("order number attempts must be > 0"))
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox poll interval, batch size and max attempts must be > 0"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox retry delay must be >= 0"))
	}
	if c.IdempotencyTTL <= 0 || c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency ttl and cleanup settings must be > 0"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be > 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(raw string) []string {
	var items []string
	for _, chunk := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(chunk); item != "" {
			items = append(items, item)
		}
	}
	return items
}
