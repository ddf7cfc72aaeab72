package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xela07ax/spaceai-orchestrator/internal/audit"
	"github.com/xela07ax/spaceai-orchestrator/internal/connectors"
	"github.com/xela07ax/spaceai-orchestrator/internal/sentinel"
)

// Config: корневая структура конфигурации оркестратора.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Sentinel  SentinelConfig  `mapstructure:"sentinel"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatabaseConfig описывает подключение к PostgreSQL. Пустой URL: хранилища в памяти.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub, kill-switch). Пустой Addr: без Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig: публичный RSA ключ для проверки операторских JWT (RS256).
type AuthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

type EngineConfig struct {
	Audit audit.Config `mapstructure:"audit"`

	// Адрес gRPC коннектора; пусто: локальный мок
	ConnectorAddr string                       `mapstructure:"connector_addr"`
	Reliability   connectors.ReliabilityConfig `mapstructure:"reliability"`
}

type GuardrailConfig struct {
	MaxInputLength int  `mapstructure:"max_input_length"`
	RedactEmail    bool `mapstructure:"redact_email"`
}

// RateLimitConfig: параметры бакета каждой сессии, неизменяемы после старта.
type RateLimitConfig struct {
	Capacity        int     `mapstructure:"capacity"`
	RefillPerSecond float64 `mapstructure:"refill_per_second"`
}

type SentinelConfig struct {
	Enabled    bool                `mapstructure:"enabled"`
	AutoBlock  bool                `mapstructure:"auto_block"` // CRITICAL-алерт включает kill-switch
	Thresholds sentinel.Thresholds `mapstructure:"thresholds"`
	Window     time.Duration       `mapstructure:"window"`
	Interval   time.Duration       `mapstructure:"interval"`
}

type WorkflowConfig struct {
	DefinitionsPath string `mapstructure:"definitions_path"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig объединяет файл, ENV и дефолты. path: явный файл (флаг --config), может быть пустым.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет: работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// PEM-ключ может прийти прямо в ENV (Docker/K8s), иначе читаем файл
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	if cfg.Auth.Enabled && len(cfg.Auth.PublicKey) == 0 {
		return nil, errors.New("auth is enabled but no public key is configured")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("engine.audit.buffer_size", 10000)
	v.SetDefault("engine.audit.batch_size", 100)
	v.SetDefault("engine.audit.flush_interval", 500*time.Millisecond)
	def := connectors.DefaultReliabilityConfig()
	v.SetDefault("engine.reliability.name", def.Name)
	v.SetDefault("engine.reliability.max_requests", def.MaxRequests)
	v.SetDefault("engine.reliability.interval", def.Interval)
	v.SetDefault("engine.reliability.open_timeout", def.OpenTimeout)
	v.SetDefault("engine.reliability.failure_threshold", def.FailureThreshold)
	v.SetDefault("engine.reliability.attempts", def.Attempts)
	v.SetDefault("engine.reliability.call_timeout", def.CallTimeout)
	v.SetDefault("engine.reliability.rate_per_second", def.RatePerSecond)
	v.SetDefault("engine.reliability.burst", def.Burst)

	v.SetDefault("guardrail.max_input_length", 4000)
	v.SetDefault("guardrail.redact_email", false)

	v.SetDefault("ratelimit.capacity", 10)
	v.SetDefault("ratelimit.refill_per_second", 0.5)

	th := sentinel.DefaultThresholds()
	v.SetDefault("sentinel.enabled", true)
	v.SetDefault("sentinel.auto_block", false)
	v.SetDefault("sentinel.thresholds.rapid_fire", th.RapidFire)
	v.SetDefault("sentinel.thresholds.security_spike", th.SecuritySpike)
	v.SetDefault("sentinel.thresholds.error_loop", th.ErrorLoop)
	v.SetDefault("sentinel.window", time.Minute)
	v.SetDefault("sentinel.interval", 15*time.Second)
}

func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
