package config

import (
	"time"

	"github.com/Aidin1998/watchlist_screening/internal/screening/models"
)

// Config is the screening service configuration
type Config struct {
	Environment string `mapstructure:"environment" validate:"oneof=development staging production test"`

	Server     ServerConfig            `mapstructure:"server"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Redis      RedisConfig             `mapstructure:"redis"`
	Kafka      KafkaConfig             `mapstructure:"kafka"`
	Tracing    TracingConfig           `mapstructure:"tracing"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Screening  ScreeningConfig         `mapstructure:"screening"`
	Dispatcher DispatcherConfig        `mapstructure:"dispatcher"`
	Providers  []models.ProviderConfig `mapstructure:"providers" validate:"dive"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	RequestBurst      int     `mapstructure:"request_burst" validate:"min=0"`
}

// DatabaseConfig selects the persistence backend. The memory driver keeps
// everything in process.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig configures the candidate cache
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db" validate:"min=0"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// KafkaConfig configures event publishing
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// TracingConfig toggles the stdout trace exporter
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	PrettyPrint bool   `mapstructure:"pretty_print"`
}

// LoggingConfig holds the log level
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// ScreeningConfig holds screening behaviour settings
type ScreeningConfig struct {
	// Deadlines by priority (low, normal, high, urgent)
	Deadlines          map[string]time.Duration `mapstructure:"deadlines"`
	RulesFile          string                   `mapstructure:"rules_file"`
	WatchlistFile      string                   `mapstructure:"watchlist_file"`
	RetryBackoff       time.Duration            `mapstructure:"retry_backoff"`
	AnalyticsRetention int                      `mapstructure:"analytics_retention_days" validate:"min=1"`
}

// DispatcherConfig sizes the processing worker pool
type DispatcherConfig struct {
	Workers       int           `mapstructure:"workers" validate:"min=1"`
	QueueSize     int           `mapstructure:"queue_size" validate:"min=1"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// PriorityDeadlines converts the configured deadlines into screening priorities
func (c ScreeningConfig) PriorityDeadlines() map[models.Priority]time.Duration {
	out := make(map[models.Priority]time.Duration, len(c.Deadlines))
	for p, d := range c.Deadlines {
		out[models.Priority(p)] = d
	}
	return out
}
