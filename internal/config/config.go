package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type ProvidersConfig struct {
	// MinLatency/MaxLatency bound the simulated network delay per provider call.
	MinLatency time.Duration      `mapstructure:"min_latency"`
	MaxLatency time.Duration      `mapstructure:"max_latency"`
	Endpoints  []ProviderEndpoint `mapstructure:"endpoints"`
}

// ProviderEndpoint describes one configured AI provider. Reply templates are
// per-language canned texts the mock generator draws from.
type ProviderEndpoint struct {
	ID          string              `mapstructure:"id"`
	DisplayName string              `mapstructure:"display_name"`
	Replies     map[string][]string `mapstructure:"replies"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type ChatConfig struct {
	// WelcomeMessageID selects the localized welcome text seeded into an
	// empty conversation.
	WelcomeMessageID string `mapstructure:"welcome_message_id"`
	MaxQuestionBytes int    `mapstructure:"max_question_bytes"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SyncConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Directory       string   `mapstructure:"directory"`
	Languages       []string `mapstructure:"languages"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.SetEnvPrefix("")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("storage.redis.addr", "REDIS_HOST", "REDIS_PORT")
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("storage.redis.db", "REDIS_DB")
	viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	viper.BindEnv("sync.base_url", "SYNC_BASE_URL")
	viper.BindEnv("sync.api_key", "SYNC_API_KEY")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := viper.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := viper.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	// Extra providers can be appended via env without touching the config
	// file: EXTRA_PROVIDERS=glm,qwen plus GLM_DISPLAY_NAME etc.
	if extra := os.Getenv("EXTRA_PROVIDERS"); extra != "" {
		for _, id := range strings.Split(extra, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			envPrefix := strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
			displayName := os.Getenv(envPrefix + "_DISPLAY_NAME")
			if displayName == "" {
				displayName = id
			}
			config.Providers.Endpoints = append(config.Providers.Endpoints, ProviderEndpoint{
				ID:          id,
				DisplayName: displayName,
			})
		}
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Providers.MinLatency == 0 {
		cfg.Providers.MinLatency = 800 * time.Millisecond
	}
	if cfg.Providers.MaxLatency == 0 {
		cfg.Providers.MaxLatency = 3500 * time.Millisecond
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = 10 * time.Second
	}
	if cfg.Chat.MaxQuestionBytes == 0 {
		cfg.Chat.MaxQuestionBytes = 4096
	}
	if cfg.Chat.WelcomeMessageID == "" {
		cfg.Chat.WelcomeMessageID = "welcome"
	}
	if cfg.I18n.DefaultLanguage == "" {
		cfg.I18n.DefaultLanguage = "zh"
	}
	if cfg.I18n.Directory == "" {
		cfg.I18n.Directory = "configs/i18n"
	}
}

func validateConfig(cfg *Config) error {
	if len(cfg.Providers.Endpoints) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	seen := make(map[string]bool)
	for _, p := range cfg.Providers.Endpoints {
		if p.ID == "" {
			return fmt.Errorf("provider id must not be empty")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		seen[p.ID] = true
	}
	if cfg.Providers.MinLatency > cfg.Providers.MaxLatency {
		return fmt.Errorf("providers.min_latency must not exceed max_latency")
	}
	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if cfg.Sync.Enabled && cfg.Sync.BaseURL == "" {
		return fmt.Errorf("sync.base_url is required when sync is enabled")
	}
	switch cfg.Storage.Type {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	return nil
}
