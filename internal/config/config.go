// Package config loads campusgate settings: built-in defaults, then an
// optional YAML file, then CAMPUSGATE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "CAMPUSGATE"

type Config struct {
	Env      string `yaml:"env" envconfig:"ENV"` // "dev" | "prod"
	HTTPAddr string `yaml:"httpAddr" envconfig:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpcAddr" envconfig:"GRPC_ADDR"`

	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOG"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Redis     RedisConfig     `yaml:"redis" envconfig:"REDIS"`
	Kafka     KafkaConfig     `yaml:"kafka" envconfig:"KAFKA"`
	Policy    PolicyConfig    `yaml:"policy" envconfig:"POLICY"`
	Alerts    AlertsConfig    `yaml:"alerts" envconfig:"ALERTS"`
	AccessLog AccessLogConfig `yaml:"accessLog" envconfig:"ACCESS_LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"OTEL"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"` // "text" | "json"
}

type StoreConfig struct {
	Backend string `yaml:"backend" envconfig:"BACKEND"` // "sqlite" | "memory"
	DBPath  string `yaml:"dbPath" envconfig:"DB_PATH"`
}

// RedisConfig enables cross-instance key locks when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

// KafkaConfig mirrors alerts to a topic when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"TOPIC"`
}

type PolicyConfig struct {
	FaceThreshold      float64       `yaml:"faceThreshold" envconfig:"FACE_THRESHOLD"`
	FailWindow         time.Duration `yaml:"failWindow" envconfig:"FAIL_WINDOW"`
	FailThreshold      int           `yaml:"failThreshold" envconfig:"FAIL_THRESHOLD"`
	Lockout            time.Duration `yaml:"lockout" envconfig:"LOCKOUT"`
	VisitorMaxDuration time.Duration `yaml:"visitorMaxDuration" envconfig:"VISITOR_MAX_DURATION"`
	VisitorBackdate    time.Duration `yaml:"visitorBackdate" envconfig:"VISITOR_BACKDATE"`
	MaxPageSize        int           `yaml:"maxPageSize" envconfig:"MAX_PAGE_SIZE"`
	DefaultPageSize    int           `yaml:"defaultPageSize" envconfig:"DEFAULT_PAGE_SIZE"`
	WriteTimeout       time.Duration `yaml:"writeTimeout" envconfig:"WRITE_TIMEOUT"`
}

type AlertsConfig struct {
	SubscriberBuffer int           `yaml:"subscriberBuffer" envconfig:"SUBSCRIBER_BUFFER"`
	WriteTimeout     time.Duration `yaml:"writeTimeout" envconfig:"WRITE_TIMEOUT"`
	AllowedOrigins   []string      `yaml:"allowedOrigins" envconfig:"ALLOWED_ORIGINS"`
}

type AccessLogConfig struct {
	RetentionDays int           `yaml:"retentionDays" envconfig:"RETENTION_DAYS"` // 0 = keep forever
	PruneInterval time.Duration `yaml:"pruneInterval" envconfig:"PRUNE_INTERVAL"`
}

type TelemetryConfig struct {
	ServiceName string  `yaml:"serviceName" envconfig:"SERVICE_NAME"`
	Endpoint    string  `yaml:"endpoint" envconfig:"ENDPOINT"`
	Insecure    bool    `yaml:"insecure" envconfig:"INSECURE"`
	SampleRatio float64 `yaml:"sampleRatio" envconfig:"SAMPLE_RATIO"`
}

func Default() *Config {
	return &Config{
		Env:      "dev",
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Store:    StoreConfig{Backend: "sqlite", DBPath: "./data/campusgate.db"},
		Kafka:    KafkaConfig{Topic: "campusgate.alerts"},
		Policy: PolicyConfig{
			FaceThreshold:      0.75,
			FailWindow:         5 * time.Minute,
			FailThreshold:      3,
			Lockout:            10 * time.Minute,
			VisitorMaxDuration: 24 * time.Hour,
			VisitorBackdate:    time.Hour,
			MaxPageSize:        100,
			DefaultPageSize:    20,
			WriteTimeout:       5 * time.Second,
		},
		Alerts: AlertsConfig{
			SubscriberBuffer: 64,
			WriteTimeout:     5 * time.Second,
		},
		AccessLog: AccessLogConfig{RetentionDays: 90, PruneInterval: 6 * time.Hour},
		Telemetry: TelemetryConfig{ServiceName: "campusgate", SampleRatio: 1},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Kafka.Brokers = trimAll(c.Kafka.Brokers)
	c.Alerts.AllowedOrigins = trimAll(c.Alerts.AllowedOrigins)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	p := c.Policy
	if p.FaceThreshold <= 0 || p.FaceThreshold > 1 {
		errs = append(errs, fmt.Errorf("policy.faceThreshold must be in (0, 1], got %v", p.FaceThreshold))
	}
	if p.FailWindow <= 0 {
		errs = append(errs, errors.New("policy.failWindow must be positive"))
	}
	if p.FailThreshold < 1 {
		errs = append(errs, errors.New("policy.failThreshold must be at least 1"))
	}
	if p.Lockout < 0 {
		errs = append(errs, errors.New("policy.lockout must not be negative"))
	}
	if p.VisitorMaxDuration <= 0 {
		errs = append(errs, errors.New("policy.visitorMaxDuration must be positive"))
	}
	if p.MaxPageSize < 1 || p.DefaultPageSize < 1 || p.DefaultPageSize > p.MaxPageSize {
		errs = append(errs, errors.New("policy page sizes must satisfy 1 <= defaultPageSize <= maxPageSize"))
	}
	if p.WriteTimeout <= 0 {
		errs = append(errs, errors.New("policy.writeTimeout must be positive"))
	}
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend must be sqlite or memory, got %q", c.Store.Backend))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.AccessLog.RetentionDays < 0 {
		errs = append(errs, errors.New("accessLog.retentionDays must not be negative"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, errors.New("telemetry.sampleRatio must be in [0, 1]"))
	}
	return errors.Join(errs...)
}
