package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. SCREENING_DATABASE_DSN
const EnvPrefix = "SCREENING"

// ReloadCallback is called when configuration is reloaded
type ReloadCallback func(oldConfig, newConfig *Config) error

// ConfigManager loads the configuration and reloads it when the file changes
type ConfigManager struct {
	mu        sync.RWMutex
	config    *Config
	viper     *viper.Viper
	validator *validator.Validate
	logger    *zap.Logger

	reloadCallbacks []ReloadCallback
	lastReload      time.Time
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(logger *zap.Logger) *ConfigManager {
	return &ConfigManager{
		viper:     viper.New(),
		validator: validator.New(),
		logger:    logger.Named("config"),
	}
}

// LoadConfig loads the first config file found in configPaths, merged with
// SCREENING_* environment variables, applies defaults and validates.
func (cm *ConfigManager) LoadConfig(configPaths ...string) (*Config, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.setupViper()
	if err := cm.loadConfigFile(configPaths...); err != nil {
		return nil, err
	}

	config, err := cm.decode()
	if err != nil {
		return nil, err
	}

	cm.config = config
	cm.lastReload = time.Now()
	cm.logger.Info("Configuration loaded",
		zap.String("environment", config.Environment),
		zap.String("database_driver", config.Database.Driver),
		zap.Int("providers", len(config.Providers)))
	return config, nil
}

// Watch reloads the configuration whenever the file changes. Invalid
// configurations are logged and ignored.
func (cm *ConfigManager) Watch() {
	cm.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cm.logger.Info("Configuration file changed", zap.String("file", e.Name))
		if err := cm.Reload(); err != nil {
			cm.logger.Error("Configuration reload rejected", zap.Error(err))
		}
	})
	cm.viper.WatchConfig()
}

// Reload re-reads the configuration file and notifies callbacks
func (cm *ConfigManager) Reload() error {
	cm.mu.Lock()
	if file := cm.viper.ConfigFileUsed(); file != "" {
		if err := cm.viper.ReadInConfig(); err != nil {
			cm.mu.Unlock()
			return fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}
	newConfig, err := cm.decode()
	if err != nil {
		cm.mu.Unlock()
		return err
	}
	oldConfig := cm.config
	cm.config = newConfig
	cm.lastReload = time.Now()
	callbacks := append([]ReloadCallback(nil), cm.reloadCallbacks...)
	cm.mu.Unlock()

	for _, callback := range callbacks {
		if err := callback(oldConfig, newConfig); err != nil {
			cm.logger.Error("Reload callback failed", zap.Error(err))
		}
	}
	return nil
}

// AddReloadCallback adds a callback to be called when configuration is reloaded
func (cm *ConfigManager) AddReloadCallback(callback ReloadCallback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.reloadCallbacks = append(cm.reloadCallbacks, callback)
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// GetLastReloadTime returns the time of the last configuration reload
func (cm *ConfigManager) GetLastReloadTime() time.Time {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lastReload
}

func (cm *ConfigManager) setupViper() {
	cm.viper.SetConfigType("yaml")
	cm.viper.SetEnvPrefix(EnvPrefix)
	cm.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.viper.AutomaticEnv()
	setViperDefaults(cm.viper)
}

func (cm *ConfigManager) loadConfigFile(configPaths ...string) error {
	if len(configPaths) == 0 {
		configPaths = []string{
			"./config.yaml",
			"./configs/config.yaml",
			"/etc/screening/config.yaml",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			cm.logger.Debug("Config file not found, skipping", zap.String("path", path))
			continue
		}
		cm.viper.SetConfigFile(path)
		if err := cm.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cm.logger.Info("Loaded configuration file", zap.String("file", path))
		return nil
	}

	cm.logger.Warn("No configuration file found, using defaults and environment variables")
	return nil
}

func (cm *ConfigManager) decode() (*Config, error) {
	var config Config
	if err := cm.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	setDefaults(&config)
	if err := cm.validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// setViperDefaults registers every scalar key so environment overrides apply
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.requests_per_second", 50)
	v.SetDefault("server.request_burst", 100)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "screening:candidates")
	v.SetDefault("redis.cache_ttl", "5m")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "screening.events")
	v.SetDefault("kafka.batch_timeout", "50ms")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "watchlist-screening")
	v.SetDefault("tracing.pretty_print", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("screening.rules_file", "")
	v.SetDefault("screening.watchlist_file", "")
	v.SetDefault("screening.retry_backoff", "100ms")
	v.SetDefault("screening.analytics_retention_days", 90)
	v.SetDefault("dispatcher.workers", 4)
	v.SetDefault("dispatcher.queue_size", 256)
	v.SetDefault("dispatcher.sweep_interval", "1m")
}

// setDefaults fills values viper cannot default, such as map entries
func setDefaults(config *Config) {
	if config.Screening.Deadlines == nil {
		config.Screening.Deadlines = make(map[string]time.Duration)
	}
	for p, d := range map[string]time.Duration{
		"urgent": 10 * time.Second,
		"high":   20 * time.Second,
		"normal": 30 * time.Second,
		"low":    60 * time.Second,
	} {
		if config.Screening.Deadlines[p] <= 0 {
			config.Screening.Deadlines[p] = d
		}
	}
	if config.Database.Driver == "sqlite" && config.Database.DSN == "" {
		config.Database.DSN = "file:screening.db?cache=shared"
	}
}

func (cm *ConfigManager) validateConfig(config *Config) error {
	if err := cm.validator.Struct(config); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if config.Database.Driver == "postgres" && config.Database.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}
	if config.Kafka.Enabled && len(config.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka is enabled but no brokers are configured")
	}
	if config.Redis.Enabled && config.Redis.Address == "" {
		return fmt.Errorf("redis is enabled but no address is configured")
	}
	for p := range config.Screening.Deadlines {
		switch p {
		case "low", "normal", "high", "urgent":
		default:
			return fmt.Errorf("unknown priority %q in screening.deadlines", p)
		}
	}

	seen := make(map[string]bool, len(config.Providers))
	for i, p := range config.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d has empty name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %s is configured twice", p.Name)
		}
		seen[p.Name] = true
		if p.TimeoutMs < 0 || p.RetryAttempts < 0 || p.RateLimitPerMinute < 0 {
			return fmt.Errorf("provider %s has negative limits", p.Name)
		}
		for _, lt := range p.ListTypes {
			if !lt.Valid() {
				return fmt.Errorf("provider %s lists unknown watchlist type %q", p.Name, lt)
			}
		}
	}
	return nil
}
