// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Data, View, Metadata, Redis, Kafka, Analytics, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	View      ViewConfig      `yaml:"view"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is the number of API requests allowed per client IP per
	// minute. Zero disables rate limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// SnapshotPosition is one stop of the snapshot slider: the cutoff the file
// was pre-filtered with and the file holding the ranking.
type SnapshotPosition struct {
	Value int    `yaml:"value"`
	File  string `yaml:"file"`
}

// DataConfig says where the static ranking files live. Exactly one of
// BaseURL and Dir is used; BaseURL wins when both are set.
type DataConfig struct {
	BaseURL      string             `yaml:"baseUrl"`
	Dir          string             `yaml:"dir"`
	Snapshots    []SnapshotPosition `yaml:"snapshots"`
	MetadataFile string             `yaml:"metadataFile"`
	FetchTimeout time.Duration      `yaml:"fetchTimeout"`
	Prefetch     bool               `yaml:"prefetch"`
}

// Values returns the display values of the snapshot positions in order.
func (d DataConfig) Values() []int {
	values := make([]int, len(d.Snapshots))
	for i, s := range d.Snapshots {
		values[i] = s.Value
	}
	return values
}

// Files returns the snapshot file names in slider order.
func (d DataConfig) Files() []string {
	files := make([]string, len(d.Snapshots))
	for i, s := range d.Snapshots {
		files[i] = s.File
	}
	return files
}

// ViewConfig controls the table variant and the slider ranges.
type ViewConfig struct {
	Variant         string `yaml:"variant"`
	DefaultSnapshot int    `yaml:"defaultSnapshot"`
	CutoffMin       int    `yaml:"cutoffMin"`
	CutoffMax       int    `yaml:"cutoffMax"`
	CutoffStep      int    `yaml:"cutoffStep"`
	DefaultCutoff   int    `yaml:"defaultCutoff"`
}

// CutoffAllowed reports whether c is a position of the cutoff slider.
func (v ViewConfig) CutoffAllowed(c int) bool {
	step := max(v.CutoffStep, 1)
	return c >= v.CutoffMin && c <= v.CutoffMax && (c-v.CutoffMin)%step == 0
}

// MetadataConfig selects where the metadata lookup is read from. Driver
// "file" reads Data.MetadataFile through the same fetcher as the snapshots;
// "postgres" and "sqlite" query the anime table at DSN.
type MetadataConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ViewEvents string `yaml:"viewEvents"`
}

// AnalyticsConfig controls view-event collection. Transport "kafka" publishes
// events to Kafka.Topics.ViewEvents and aggregates them from there; "local"
// hands them straight to the in-process aggregator. HistoryInterval, when
// set and metadata lives in a database, persists stats periodically.
type AnalyticsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Transport       string        `yaml:"transport"`
	BufferSize      int           `yaml:"bufferSize"`
	BatchSize       int           `yaml:"batchSize"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	HistoryInterval time.Duration `yaml:"historyInterval"`
}

// LoggingConfig controls structured logging level and output format. File,
// when set, receives a JSON copy of every record.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config matching the published ranking data set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
			CORSOrigins:     []string{"*"},
		},
		Data: DataConfig{
			Dir: "webpage-data",
			Snapshots: []SnapshotPosition{
				{Value: 0, File: "50027_0.json"},
				{Value: 1000, File: "50027_1000.json"},
				{Value: 5000, File: "50027_5000.json"},
				{Value: 10000, File: "50027_10000.json"},
				{Value: 12000, File: "50027_12000.json"},
			},
			MetadataFile: "anime.json",
			FetchTimeout: 10 * time.Second,
		},
		View: ViewConfig{
			Variant:    "basic",
			CutoffMin:  0,
			CutoffMax:  5000,
			CutoffStep: 50,
		},
		Metadata: MetadataConfig{
			Driver:          "file",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: time.Hour,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "rankview-group",
			Topics: KafkaTopics{
				ViewEvents: "rankview-view-events",
			},
		},
		Analytics: AnalyticsConfig{
			Transport:     "local",
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate checks cross-field constraints that defaults cannot fix.
func (c *Config) Validate() error {
	if len(c.Data.Snapshots) == 0 {
		return fmt.Errorf("data.snapshots: at least one snapshot position is required")
	}
	for i, s := range c.Data.Snapshots {
		if s.File == "" {
			return fmt.Errorf("data.snapshots[%d]: file is required", i)
		}
	}
	if c.Data.BaseURL == "" && c.Data.Dir == "" {
		return fmt.Errorf("data: one of baseUrl or dir is required")
	}
	if c.View.DefaultSnapshot < 0 || c.View.DefaultSnapshot >= len(c.Data.Snapshots) {
		return fmt.Errorf("view.defaultSnapshot %d out of range [0,%d)", c.View.DefaultSnapshot, len(c.Data.Snapshots))
	}
	if c.View.CutoffMax < c.View.CutoffMin {
		return fmt.Errorf("view.cutoffMax %d below cutoffMin %d", c.View.CutoffMax, c.View.CutoffMin)
	}
	if !c.View.CutoffAllowed(c.View.DefaultCutoff) {
		return fmt.Errorf("view.defaultCutoff %d is not a cutoff slider position", c.View.DefaultCutoff)
	}
	switch c.View.Variant {
	case "basic", "extended":
	default:
		return fmt.Errorf("view.variant %q: must be basic or extended", c.View.Variant)
	}
	switch c.Metadata.Driver {
	case "file":
		if c.Data.MetadataFile == "" {
			return fmt.Errorf("data.metadataFile is required for metadata driver file")
		}
	case "postgres", "sqlite":
		if c.Metadata.DSN == "" {
			return fmt.Errorf("metadata.dsn is required for driver %s", c.Metadata.Driver)
		}
	default:
		return fmt.Errorf("metadata.driver %q: must be file, postgres or sqlite", c.Metadata.Driver)
	}
	switch c.Analytics.Transport {
	case "local":
	case "kafka":
		if c.Analytics.Enabled && len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for analytics transport kafka")
		}
	default:
		return fmt.Errorf("analytics.transport %q: must be local or kafka", c.Analytics.Transport)
	}
	return nil
}

// applyEnvOverrides reads RV_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RV_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RV_DATA_BASE_URL"); v != "" {
		cfg.Data.BaseURL = v
	}
	if v := os.Getenv("RV_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("RV_DATA_PREFETCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Data.Prefetch = b
		}
	}
	if v := os.Getenv("RV_VIEW_VARIANT"); v != "" {
		cfg.View.Variant = v
	}
	if v := os.Getenv("RV_METADATA_DRIVER"); v != "" {
		cfg.Metadata.Driver = v
	}
	if v := os.Getenv("RV_METADATA_DSN"); v != "" {
		cfg.Metadata.DSN = v
	}
	if v := os.Getenv("RV_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("RV_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RV_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RV_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RV_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("RV_ANALYTICS_TRANSPORT"); v != "" {
		cfg.Analytics.Transport = v
	}
	if v := os.Getenv("RV_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RV_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RV_LOGGING_FILE"); v != "" {
		cfg.Logging.File = v
	}
}
