package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StageBroker is the broker name the stage processes register their
// RABBIT_* settings under.
const StageBroker = "pipeline"

// ExitCodeMissingConfig is the exit status of a stage started without its
// required settings.
const ExitCodeMissingConfig = 128

type Stage string

const (
	StageAPI          Stage = "api"
	StageResolver     Stage = "resolver"
	StageMaterializer Stage = "materializer"
	StageRecorder     Stage = "recorder"
)

// BrokerConfig describes one named RabbitMQ connection.
type BrokerConfig struct {
	HostName string `yaml:"host_name"`
	Port     int    `yaml:"port"`
	UserName string `yaml:"user_name"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type RedisConfig struct {
	Host     string `yaml:"host_name"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

func (p PostgresConfig) Enabled() bool {
	return p.URL != "" || p.Host != ""
}

// DSN returns URL when set, otherwise a connection string assembled from the
// individual fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=disable",
	}
	return dsn.String()
}

type SearchConfig struct {
	Broker string `yaml:"broker"`
	Queue  string `yaml:"queue"`
}

// StageConfig holds the settings of a StageWorker process.
type StageConfig struct {
	RequestQueue   string        `yaml:"request_queue"`
	ResponseQueue  string        `yaml:"response_queue"`
	Prefetch       int           `yaml:"prefetch"`
	OutputPath     string        `yaml:"output_path"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
	MetricsAddr    string        `yaml:"metrics_addr"`
}

type BootstrapConfig struct {
	MaxAttempts uint          `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

type HTTPConfig struct {
	Port           string  `yaml:"port"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// Config centralizes runtime settings for the API and the stage workers.
type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	HTTP           HTTPConfig              `yaml:"http"`
	Brokers        map[string]BrokerConfig `yaml:"brokers"`
	Redis          RedisConfig             `yaml:"redis"`
	Postgres       PostgresConfig          `yaml:"postgres"`
	Search         SearchConfig            `yaml:"search"`
	Stage          StageConfig             `yaml:"stage"`
	Bootstrap      BootstrapConfig         `yaml:"bootstrap"`
	ResultCacheTTL time.Duration           `yaml:"result_cache_ttl"`
}

// Load reads .env files, the optional CONFIG_FILE yaml document and the
// process environment, in increasing order of precedence.
func Load() (Config, error) {
	if err := loadDotEnv(".env", ".env.local"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Environ())
	cfg.ApplyDefaults()
	return cfg, nil
}

func loadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		// godotenv.Load keeps variables that are already set.
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(environ []string) {
	c.Env = getEnv("APP_ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	c.HTTP.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", c.HTTP.RateLimitRPS)
	c.HTTP.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.HTTP.RateLimitBurst)

	if c.Brokers == nil {
		c.Brokers = make(map[string]BrokerConfig)
	}
	applyNamedBrokers(c.Brokers, environ)
	if host := os.Getenv("RABBIT_HOST_NAME"); host != "" {
		stage := c.Brokers[StageBroker]
		stage.HostName = host
		stage.Port = getEnvInt("RABBIT_PORT", stage.Port)
		stage.UserName = getEnv("RABBIT_USER_NAME", stage.UserName)
		stage.Password = getEnv("RABBIT_PASSWORD", stage.Password)
		stage.VHost = getEnv("RABBIT_VHOST", stage.VHost)
		c.Brokers[StageBroker] = stage
	}

	c.Redis.Host = getEnv("REDIS_HOST_NAME", c.Redis.Host)
	c.Redis.Port = getEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Postgres.URL = getEnv("DATABASE_URL", c.Postgres.URL)
	c.Postgres.Host = getEnv("POSTGRES_HOST", c.Postgres.Host)
	c.Postgres.Port = getEnvInt("POSTGRES_PORT", c.Postgres.Port)
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.Database = getEnv("POSTGRES_DATABASE", c.Postgres.Database)

	c.Search.Broker = getEnv("SEARCH_BROKER", c.Search.Broker)
	c.Search.Queue = getEnv("SEARCH_QUEUE", c.Search.Queue)

	c.Stage.RequestQueue = getEnv("RABBIT_REQUEST_QUEUE", c.Stage.RequestQueue)
	c.Stage.ResponseQueue = getEnv("RABBIT_RESPONSE_QUEUE", c.Stage.ResponseQueue)
	c.Stage.Prefetch = getEnvInt("RABBIT_PREFETCH", c.Stage.Prefetch)
	c.Stage.OutputPath = getEnv("OUTPUT_PATH", c.Stage.OutputPath)
	c.Stage.HandlerTimeout = getEnvDuration("HANDLER_TIMEOUT", c.Stage.HandlerTimeout)
	c.Stage.MetricsAddr = getEnv("METRICS_ADDR", c.Stage.MetricsAddr)

	c.Bootstrap.MaxAttempts = uint(getEnvInt("BOOTSTRAP_MAX_ATTEMPTS", int(c.Bootstrap.MaxAttempts)))
	c.Bootstrap.Delay = getEnvDuration("BOOTSTRAP_DELAY", c.Bootstrap.Delay)
	c.ResultCacheTTL = getEnvDuration("RESULT_CACHE_TTL", c.ResultCacheTTL)
}

// applyNamedBrokers reads RABBITMQ__<NAME>__<FIELD> variables.
func applyNamedBrokers(brokers map[string]BrokerConfig, environ []string) {
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, "RABBITMQ__") {
			continue
		}
		name, field, ok := strings.Cut(strings.TrimPrefix(key, "RABBITMQ__"), "__")
		if !ok || name == "" {
			continue
		}

		broker := brokers[name]
		switch strings.ToUpper(field) {
		case "HOST_NAME", "HOSTNAME":
			broker.HostName = value
		case "PORT":
			if port, err := strconv.Atoi(value); err == nil {
				broker.Port = port
			}
		case "USER_NAME", "USERNAME":
			broker.UserName = value
		case "PASSWORD":
			broker.Password = value
		case "VHOST":
			broker.VHost = value
		default:
			continue
		}
		brokers[name] = broker
	}
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Port == "" {
		c.HTTP.Port = "8080"
	}
	if c.HTTP.RateLimitRPS <= 0 {
		c.HTTP.RateLimitRPS = 20
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 40
	}
	for name, broker := range c.Brokers {
		if broker.Port <= 0 {
			broker.Port = 5672
		}
		if broker.UserName == "" {
			broker.UserName = "guest"
		}
		if broker.Password == "" {
			broker.Password = "guest"
		}
		c.Brokers[name] = broker
	}
	if c.Redis.Port <= 0 {
		c.Redis.Port = 6379
	}
	if c.Postgres.Port <= 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.User == "" {
		c.Postgres.User = "postgres"
	}
	if c.Postgres.Password == "" {
		c.Postgres.Password = "postgres"
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = "postgres"
	}
	if c.Search.Broker == "" {
		c.Search.Broker = "RedisBroker"
	}
	if c.Search.Queue == "" {
		c.Search.Queue = "SearchRequest"
	}
	if c.Stage.Prefetch <= 0 {
		c.Stage.Prefetch = 16
	}
	if c.Stage.HandlerTimeout <= 0 {
		c.Stage.HandlerTimeout = 30 * time.Second
	}
	if c.Stage.MetricsAddr == "" {
		c.Stage.MetricsAddr = ":9100"
	}
	if c.Bootstrap.MaxAttempts == 0 {
		c.Bootstrap.MaxAttempts = 10
	}
	if c.Bootstrap.Delay <= 0 {
		c.Bootstrap.Delay = 5 * time.Second
	}
	if c.ResultCacheTTL <= 0 {
		c.ResultCacheTTL = 10 * time.Minute
	}
}

// Broker resolves the named broker section. It is consulted on every lookup
// so that a section added after start-up is picked up by the next caller.
func (c Config) Broker(name string) (BrokerConfig, bool) {
	broker, ok := c.Brokers[name]
	if !ok || broker.HostName == "" {
		return BrokerConfig{}, false
	}
	return broker, true
}

// ValidateStage reports every required setting missing for stage.
func (c Config) ValidateStage(stage Stage) error {
	var missing []string
	require := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}

	switch stage {
	case StageAPI:
		return nil
	case StageResolver, StageMaterializer, StageRecorder:
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}

	_, hasBroker := c.Broker(StageBroker)
	require(hasBroker, "RABBIT_HOST_NAME")
	require(c.Stage.RequestQueue != "", "RABBIT_REQUEST_QUEUE")

	switch stage {
	case StageResolver:
		require(c.Stage.ResponseQueue != "", "RABBIT_RESPONSE_QUEUE")
		require(c.Redis.Enabled(), "REDIS_HOST_NAME")
	case StageMaterializer:
		require(c.Stage.ResponseQueue != "", "RABBIT_RESPONSE_QUEUE")
		require(c.Stage.OutputPath != "", "OUTPUT_PATH")
	case StageRecorder:
		require(c.Redis.Enabled(), "REDIS_HOST_NAME")
		require(c.Postgres.Enabled(), "POSTGRES_HOST")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
