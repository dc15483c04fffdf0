package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved configuration surface, loaded from
// config.yaml / environment / defaults by Load.
type Config struct {
	Server  ServerConfig
	Broker  BrokerConfig
	Worker  WorkerConfig
	Fanout  FanoutConfig
	Metrics MetricsConfig
	Auth    AuthConfig

	LogLevel string
}

// ServerConfig configures the HTTP/REST boundary (internal/api).
type ServerConfig struct {
	Host         string
	Port         int
	AdminPort    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BrokerConfig configures the Redis connection the broker owns plus
// deployment-tunable durable-state knobs: retry backoff bounds and
// completed/failed record retention.
type BrokerConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	DefaultQueue       string
	BaseRetryDelay     time.Duration
	MaxRetryDelay      time.Duration
	CompletedRetention time.Duration

	// PromoteInterval is how often the delayed-visibility promoter scans
	// queue:{q}:delayed for due ids (retry backoff and ScheduledAt hints).
	PromoteInterval time.Duration
}

// WorkerConfig configures the worker runtime (internal/worker).
type WorkerConfig struct {
	ID                string
	Queues            []string
	Concurrency       int
	TaskTimeout       time.Duration
	HeartbeatInterval time.Duration
	// StaleWorkerAfter declares a registered worker dead once its
	// heartbeat is this old. Defaults to 5x HeartbeatInterval.
	StaleWorkerAfter time.Duration
	ShutdownTimeout  time.Duration
}

// FanoutConfig configures the in-process event bus and its optional
// cross-process Redis relay (internal/events).
type FanoutConfig struct {
	BufferSize  int
	RelayEvents bool
	RelayPrefix string
	// DashboardInterval is how often the dashboard snapshot publisher
	// aggregates queue stats and worker totals onto DashboardTopic.
	DashboardInterval time.Duration
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// Load reads config.yaml (if present), overlays TASKQUEUE_* environment
// variables, and fills in the defaults set in setDefaults.
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
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.adminport", 8081)
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 30*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)

	viper.SetDefault("broker.addr", "localhost:6379")
	viper.SetDefault("broker.password", "")
	viper.SetDefault("broker.db", 0)
	viper.SetDefault("broker.poolsize", 100)
	viper.SetDefault("broker.minidleconns", 10)
	viper.SetDefault("broker.maxretries", 3)
	viper.SetDefault("broker.dialtimeout", 5*time.Second)
	viper.SetDefault("broker.readtimeout", 3*time.Second)
	viper.SetDefault("broker.writetimeout", 3*time.Second)
	viper.SetDefault("broker.defaultqueue", "default")
	viper.SetDefault("broker.baseretrydelay", 1*time.Second)
	viper.SetDefault("broker.maxretrydelay", 5*time.Minute)
	viper.SetDefault("broker.completedretention", 24*time.Hour)
	viper.SetDefault("broker.promoteinterval", 500*time.Millisecond)

	viper.SetDefault("worker.id", "")
	viper.SetDefault("worker.queues", []string{"default"})
	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.tasktimeout", 30*time.Second)
	viper.SetDefault("worker.heartbeatinterval", 5*time.Second)
	viper.SetDefault("worker.staleworkerafter", 25*time.Second)
	viper.SetDefault("worker.shutdowntimeout", 30*time.Second)

	viper.SetDefault("fanout.buffersize", 64)
	viper.SetDefault("fanout.relayevents", true)
	viper.SetDefault("fanout.relayprefix", "taskqueue:events")
	viper.SetDefault("fanout.dashboardinterval", 2*time.Second)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("auth.enabled", false)
	viper.SetDefault("auth.jwtsecret", "")
	viper.SetDefault("auth.apikeys", []string{})

	viper.SetDefault("loglevel", "info")
}
