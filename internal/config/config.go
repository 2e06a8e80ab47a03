// Package config loads THE CORE's runtime configuration through a layered
// viper stack: defaults, then ./config.yaml / ./config / /etc/taskqueue,
// then TASKQUEUE_-prefixed environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved configuration tree.
type Config struct {
	Paths     PathsConfig
	Assistant AssistantConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Resources ResourcesConfig
	Logging   LoggingConfig
	Worker    WorkerConfig
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LogLevel  string
}

// PathsConfig locates the on-disk state THE CORE owns.
type PathsConfig struct {
	BaseDir string // root containing pending/, processing/, dlq/
	DBPath  string // bbolt ledger file
}

// AssistantConfig bounds a single assistant CLI invocation.
type AssistantConfig struct {
	CLITimeout    time.Duration // claude_cli_timeout
	SessionLimit  time.Duration // claude_session_limit
	MaxOutputSize int64         // max_output_size, bytes
	BinaryPath    string
}

// RetryConfig parameterizes task.BackoffPolicy.
type RetryConfig struct {
	MaxRetries                 int           // max_retries
	BaseDelay                  time.Duration // base_delay
	MaxDelay                   time.Duration // max_delay
	ExponentialBase            float64       // exponential_base
	DefaultUnbanWait           time.Duration // default_unban_wait
	RateLimitBackoffMultiplier float64       // rate_limit_backoff_multiplier
}

// RateLimitConfig tunes the RateLimitCoordinator's probe cadence.
type RateLimitConfig struct {
	ProbeFloor   time.Duration // widest inter-probe gap
	ProbeCeiling time.Duration // narrowest inter-probe gap, within the shrink window
	ShrinkWindow time.Duration // distance-to-release under which probing accelerates
}

// ResourcesConfig bounds the RecoveryLoop's health checks.
type ResourcesConfig struct {
	MinDiskSpaceGB float64 // min_disk_space_gb
	MaxLogSizeMB   int64   // max_log_size_mb
	MaxLogFiles    int     // max_log_files
}

// LoggingConfig controls zerolog's rendering and component context.
type LoggingConfig struct {
	Level       string
	Environment string // "production" selects JSON, else console writer
}

// WorkerConfig sizes the worker pool and its liveness cadence.
type WorkerConfig struct {
	NumWorkers          int           // num_workers
	HeartbeatInterval   time.Duration // heartbeat_interval
	HealthCheckInterval time.Duration // health_check_interval
	ShutdownTimeout     time.Duration
}

// ServerConfig is the read-only status surface's bind address.
type ServerConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond int // per-client token bucket on /api/v1/*; 0 disables
}

// RedisConfig configures the optional cross-process event bus and
// rate-limit coordination backend. When Enabled is false the supervisor
// falls back to an in-memory implementation of the same interfaces.
type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuthConfig optionally gates the status API behind a bearer JWT.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

// Load reads configuration from (in ascending priority) built-in defaults,
// config.yaml discovered on the search path, then TASKQUEUE_ environment
// variables, and returns the resolved Config.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/taskqueue")

	setDefaults()

	viper.SetEnvPrefix("TASKQUEUE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("paths.basedir", "./data")
	viper.SetDefault("paths.dbpath", "./data/ledger.db")

	viper.SetDefault("assistant.clitimeout", 6000*time.Second)
	viper.SetDefault("assistant.sessionlimit", 18000*time.Second)
	viper.SetDefault("assistant.maxoutputsize", int64(52428800))
	viper.SetDefault("assistant.binarypath", "claude")

	viper.SetDefault("retry.maxretries", 5)
	viper.SetDefault("retry.basedelay", 1*time.Second)
	viper.SetDefault("retry.maxdelay", 300*time.Second)
	viper.SetDefault("retry.exponentialbase", 2.0)
	viper.SetDefault("retry.defaultunbanwait", 3600*time.Second)
	viper.SetDefault("retry.ratelimitbackoffmultiplier", 1.5)

	viper.SetDefault("ratelimit.probefloor", 5*time.Minute)
	viper.SetDefault("ratelimit.probeceiling", 1*time.Minute)
	viper.SetDefault("ratelimit.shrinkwindow", 10*time.Minute)

	viper.SetDefault("resources.mindiskspacegb", 5.0)
	viper.SetDefault("resources.maxlogsizemb", int64(50))
	viper.SetDefault("resources.maxlogfiles", 7)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.environment", "development")

	viper.SetDefault("worker.numworkers", 2)
	viper.SetDefault("worker.heartbeatinterval", 30*time.Second)
	viper.SetDefault("worker.healthcheckinterval", 60*time.Second)
	viper.SetDefault("worker.shutdowntimeout", 30*time.Second)

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.readtimeout", 10*time.Second)
	viper.SetDefault("server.writetimeout", 10*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.requestspersecond", 50)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.poolsize", 20)
	viper.SetDefault("redis.minidleconns", 5)
	viper.SetDefault("redis.maxretries", 3)
	viper.SetDefault("redis.dialtimeout", 5*time.Second)
	viper.SetDefault("redis.readtimeout", 3*time.Second)
	viper.SetDefault("redis.writetimeout", 3*time.Second)

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")

	viper.SetDefault("loglevel", "info")
}
