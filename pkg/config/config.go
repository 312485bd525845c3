package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		// control requests per second per client
		ControlRate  float64 `yaml:"control_rate" default:"5"`
		ControlBurst int     `yaml:"control_burst" default:"10"`
		CORS         bool    `yaml:"cors" default:"true"`
		// websocket keepalive
		WSPingInterval time.Duration `yaml:"ws_ping_interval" default:"30s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
		// Aggregated error logs are shipped to kafka.log_topic when enabled.
		Collect         bool          `yaml:"collect"`
		CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
		CollectMax      int           `yaml:"collect_max" default:"100"`
	} `yaml:"logger"`
	Dataset struct {
		Path       string  `yaml:"path" default:"data/dashboard_data.csv"`
		WindowSize int     `yaml:"window_size" default:"500"`
		Step       int     `yaml:"step" default:"5"`
		Speed      float64 `yaml:"speed" default:"0.1"`
	} `yaml:"dataset"`
	Session struct {
		ID    string        `yaml:"id" default:"default"`
		Store string        `yaml:"store" default:"memory"` // memory or redis
		TTL   time.Duration `yaml:"ttl" default:"168h"`
	} `yaml:"session"`
	Pipeline struct {
		MaxRPS     int           `yaml:"max_rps" default:"60"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"100ms"`
	} `yaml:"pipeline"`
	Sinks struct {
		Websocket  bool `yaml:"websocket" default:"true"`
		Kafka      bool `yaml:"kafka"`
		ClickHouse bool `yaml:"clickhouse"`
	} `yaml:"sinks"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"replay.ticks"`
		ControlTopic string   `yaml:"control_topic" default:"replay.control"`
		LogTopic     string   `yaml:"log_topic" default:"replay.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"anomaly-replay"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"replay"`
		Table            string        `yaml:"table" default:"consensus_alerts"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Chart struct {
		Width    int           `yaml:"width" default:"1200"`
		Height   int           `yaml:"height" default:"650"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"30s"`
		Cache    string        `yaml:"cache" default:"memory"` // memory or redis
	} `yaml:"chart"`
}

// Default returns a config with every default tag applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads a YAML file on top of the defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides it with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("REPLAY_DATASET"); v != "" {
		c.Dataset.Path = v
	}
	if v := os.Getenv("REPLAY_SPEED"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("REPLAY_SPEED: %w", err)
		}
		c.Dataset.Speed = f
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Dataset.Path == "" {
		return fmt.Errorf("dataset.path is required")
	}
	if c.Dataset.WindowSize <= 0 {
		return fmt.Errorf("dataset.window_size must be positive, got %d", c.Dataset.WindowSize)
	}
	if c.Dataset.Step <= 0 {
		return fmt.Errorf("dataset.step must be positive, got %d", c.Dataset.Step)
	}
	switch c.Dataset.Speed {
	case 0.5, 0.1, 0.01:
	default:
		return fmt.Errorf("dataset.speed must be one of 0.5, 0.1, 0.01, got %v", c.Dataset.Speed)
	}
	if c.Session.Store != "memory" && c.Session.Store != "redis" {
		return fmt.Errorf("session.store must be 'memory' or 'redis', got '%s'", c.Session.Store)
	}
	if c.Chart.Cache != "memory" && c.Chart.Cache != "redis" {
		return fmt.Errorf("chart.cache must be 'memory' or 'redis', got '%s'", c.Chart.Cache)
	}
	if (c.Sinks.Kafka || c.Kafka.Consumer.Enabled || c.Logger.Collect) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when a kafka feature is enabled")
	}
	if c.Pipeline.BufferSize <= 0 {
		return fmt.Errorf("pipeline.buffer_size must be positive")
	}
	return nil
}

// RedisNeeded reports whether any component is configured to use redis.
func (c *Config) RedisNeeded() bool {
	return c.Session.Store == "redis" || c.Chart.Cache == "redis"
}
