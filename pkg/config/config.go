package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"DEVELOPMENT" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal panic"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"50"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"7"`
		// ErrorSummaryInterval controls how often repeated error lines are
		// published to the health channel. Zero disables the collector.
		ErrorSummaryInterval time.Duration `yaml:"error_summary_interval" default:"30s"`
	} `yaml:"logging"`
	Redis struct {
		URL              string        `yaml:"url"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"6379"`
		DB               int           `yaml:"db" default:"0"`
		Password         string        `yaml:"password"`
		SubscribeTimeout time.Duration `yaml:"subscribe_timeout" default:"2s"`
		PerfSamples      int           `yaml:"perf_samples" default:"5" validate:"gte=1"`
	} `yaml:"redis"`
	Detector struct {
		Enabled               bool          `yaml:"enabled" default:"true"`
		BufferSize            int           `yaml:"buffer_size" default:"100" validate:"gte=10"`
		QueueSize             int           `yaml:"queue_size" default:"1000" validate:"gte=1"`
		HeartbeatKey          string        `yaml:"heartbeat_key" default:"tickstock:producer:heartbeat"`
		HeartbeatInterval     time.Duration `yaml:"heartbeat_interval" default:"5s"`
		HeartbeatTTL          time.Duration `yaml:"heartbeat_ttl" default:"30s"`
		PatternsChannel       string        `yaml:"patterns_channel" default:"tickstock.events.patterns"`
		HealthChannel         string        `yaml:"health_channel" default:"tickstock.health.status"`
		HealthPublishInterval time.Duration `yaml:"health_publish_interval" default:"30s"`
	} `yaml:"detector"`
	FlowLog struct {
		Enabled  bool   `yaml:"enabled" default:"false"`
		FilePath string `yaml:"file_path"`
		Level    string `yaml:"level" default:"info"`
	} `yaml:"flow_log"`
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		TicksTopic      string   `yaml:"ticks_topic" default:"market.ticks"`
		DetectionsTopic string   `yaml:"detections_topic"`
		RequiredAcks    int      `yaml:"required_acks" default:"-1"`
		Compression     string   `yaml:"compression" default:"gzip"`
		Consumer        struct {
			GroupID    string        `yaml:"group_id" default:"tickstock-fallback"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
}

var validate = validator.New()

// Default returns a config populated only from struct defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("APP_ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("REDIS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_PORT: %w", err)
		}
		c.Redis.Port = port
	}
	if v := getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("KAFKA_TICKS_TOPIC"); v != "" {
		c.Kafka.TicksTopic = v
	}
	if v := getenv("INTEGRATION_LOGGING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INTEGRATION_LOGGING_ENABLED: %w", err)
		}
		c.FlowLog.Enabled = enabled
	}
	return nil
}

// Validate checks if the configuration is valid.
// Redis connection ranges are checked later by the startup validator so the
// operator gets its troubleshooting report instead of a bare config error.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Detector.HeartbeatTTL <= 0 {
		return fmt.Errorf("detector.heartbeat_ttl must be positive")
	}
	if c.Kafka.DetectionsTopic != "" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.detections_topic requires kafka.brokers")
	}
	return nil
}

// IsProduction reports whether production latency thresholds apply.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "PRODUCTION")
}
