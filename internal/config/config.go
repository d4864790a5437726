// config реализует конфигурацию comment-tree: загрузка из YAML/ENV с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища комментариев.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Config — корневая конфигурация сервиса.
// Приоритет источников:
//  1. явный путь, переданный в MustLoad/Load;
//  2. переменная окружения CONFIG_PATH;
//  3. файл ./local.yaml из рабочей директории;
//  4. переменные окружения.
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	GRPC     GRPCConfig    `yaml:"grpc"`
	HTTP     HTTPConfig    `yaml:"http"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Cache    CacheConfig   `yaml:"cache"`
	Limits   LimitsConfig  `yaml:"limits"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig — сервисные таймауты.
type TimeoutConfig struct {
	// Общий дедлайн обработки запроса.
	Service time.Duration `yaml:"service" env:"SERVICE" env-default:"5s"`
	// Дедлайн полной пересборки снапшота (не зависит от отмены запроса).
	Rebuild time.Duration `yaml:"rebuild" env:"REBUILD_TIMEOUT" env-default:"10s"`
}

// GRPCConfig — сетевые настройки gRPC-сервера.
type GRPCConfig struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50055"`
}

// HTTPConfig — HTTP API чтения + health/metrics.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8085"`
}

// Addr возвращает адрес в формате host:port.
func (g GRPCConfig) Addr() string {
	return net.JoinHostPort(g.Host, g.Port)
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// DBConfig — хранилище комментариев (источник истины).
type DBConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER" env-default:"mongo"`
	URL    string `yaml:"url" env:"DATABASE_URL" env-required:"true"`
}

// RedisConfig — общие версии обсуждений. Пустой URL - версии в памяти процесса.
type RedisConfig struct {
	URL    string        `yaml:"url" env:"REDIS_URL"`
	Prefix string        `yaml:"prefix" env:"REDIS_PREFIX" env-default:"ctree:stamp:"`
	TTL    time.Duration `yaml:"ttl" env:"REDIS_STAMP_TTL" env-default:"168h"`
}

// CacheConfig — кэш деревьев.
type CacheConfig struct {
	// Максимум обсуждений в памяти.
	Size int `yaml:"size" env:"CACHE_SIZE" env-default:"1024"`
	// Снапшот без обращений дольше этого срока выбрасывается.
	IdleTTL time.Duration `yaml:"idle_ttl" env:"CACHE_IDLE_TTL" env-default:"15m"`
	// Период фоновой чистки простаивающих снапшотов.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"CACHE_SWEEP_INTERVAL" env-default:"1m"`
}

// LimitsConfig — лимиты выдачи. Глубина корня = 0.
type LimitsConfig struct {
	DefaultDepth int `yaml:"default_depth" env:"DEFAULT_DEPTH" env-default:"8"`
	MaxDepth     int `yaml:"max_depth" env:"MAX_DEPTH" env-default:"10"`
	// Максимальная глубина, с которой клиент может раскрывать маркер.
	MaxStartDepth int `yaml:"max_start_depth" env:"MAX_START_DEPTH" env-default:"64"`
	DefaultItems  int `yaml:"default_items" env:"DEFAULT_ITEMS" env-default:"200"`
	MaxItems      int `yaml:"max_items" env:"MAX_ITEMS" env-default:"500"`
	// Максимум детей в одном запросе раскрытия.
	MaxChildren int `yaml:"max_children" env:"MAX_CHILDREN" env-default:"100"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	read := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		if err := cfg.validate(); err != nil {
			return nil, err
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return read(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return read(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return read("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate — базовая валидация значений.
func (c *Config) validate() error {
	if c.DB.URL == "" {
		return fmt.Errorf("db.url is required")
	}

	if c.DB.Driver != DriverMongo && c.DB.Driver != DriverPostgres {
		return fmt.Errorf("db.driver must be %q or %q", DriverMongo, DriverPostgres)
	}

	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be > 0")
	}

	if c.Cache.IdleTTL < 0 {
		return fmt.Errorf("cache.idle_ttl must be >= 0")
	}

	if c.Limits.MaxDepth <= 0 || c.Limits.MaxDepth > 64 {
		return fmt.Errorf("limits.max_depth must be in [1, 64]")
	}

	if c.Limits.DefaultDepth < 0 || c.Limits.DefaultDepth > c.Limits.MaxDepth {
		return fmt.Errorf("limits.default_depth must be in [0, limits.max_depth]")
	}

	if c.Limits.MaxStartDepth < 0 {
		return fmt.Errorf("limits.max_start_depth must be >= 0")
	}

	if c.Limits.DefaultItems <= 0 {
		return fmt.Errorf("limits.default_items must be > 0")
	}

	if c.Limits.MaxItems <= 0 {
		return fmt.Errorf("limits.max_items must be > 0")
	}

	if c.Limits.DefaultItems > c.Limits.MaxItems {
		return fmt.Errorf("limits.default_items must be <= limits.max_items")
	}

	if c.Limits.MaxChildren <= 0 {
		return fmt.Errorf("limits.max_children must be > 0")
	}

	if c.Timeouts.Service <= 0 {
		return fmt.Errorf("timeouts.service must be > 0")
	}

	if c.Timeouts.Rebuild <= 0 {
		return fmt.Errorf("timeouts.rebuild must be > 0")
	}

	return nil
}
