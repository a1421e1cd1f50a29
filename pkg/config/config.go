package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures the full runtime configuration for the StreamVault service.
type Config struct {
	App         AppConfig
	HTTP        HTTPConfig
	Metadata    MetadataConfig
	Storage     StorageConfig
	Upload      UploadConfig
	Kafka       KafkaConfig
	ObjectStore ObjectStoreConfig
	Auth        AuthConfig
	Tracing     TracingConfig
	Metrics     MetricsConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"streamvault"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
}

type MetadataConfig struct {
	// Driver selects the asset store backend: "sqlite" or "postgres".
	Driver string `env:"METADATA_DRIVER" envDefault:"sqlite"`
	DSN    string `env:"METADATA_DSN" envDefault:"./streamvault.db"`
}

type StorageConfig struct {
	// RootDir holds one committed directory per asset identifier.
	RootDir string `env:"STORAGE_ROOT_DIR" envDefault:"./data/assets"`
	// StagingDir receives uploads before promotion. Must live on the same
	// filesystem as RootDir so the promotion rename stays atomic.
	StagingDir string `env:"STORAGE_STAGING_DIR" envDefault:"./data/staging"`
	// PlaylistDepth bounds media-playlist indirection below the master.
	PlaylistDepth int `env:"STORAGE_PLAYLIST_DEPTH" envDefault:"1"`
}

type UploadConfig struct {
	MaxBundleBytes    int64 `env:"UPLOAD_MAX_BUNDLE_BYTES" envDefault:"2147483648"`
	MultipartMemBytes int64 `env:"UPLOAD_MULTIPART_MEM_BYTES" envDefault:"52428800"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	JobsTopic        string        `env:"KAFKA_JOBS_TOPIC" envDefault:"streamvault.processing.jobs"`
	ResultsTopic     string        `env:"KAFKA_RESULTS_TOPIC" envDefault:"streamvault.processing.results"`
	ResultsGroupID   string        `env:"KAFKA_RESULTS_GROUP_ID" envDefault:"streamvault"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
}

type ObjectStoreConfig struct {
	// Enabled turns on the best-effort mirror of committed bundles.
	Enabled   bool   `env:"OBJECT_STORE_ENABLED" envDefault:"false"`
	Endpoint  string `env:"OBJECT_STORE_ENDPOINT" envDefault:"localhost:9000"`
	Region    string `env:"OBJECT_STORE_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"OBJECT_STORE_BUCKET" envDefault:"streamvault-assets"`
	AccessKey string `env:"OBJECT_STORE_ACCESS_KEY" envDefault:"minioadmin"`
	SecretKey string `env:"OBJECT_STORE_SECRET_KEY" envDefault:"minioadmin"`
	UseSSL    bool   `env:"OBJECT_STORE_USE_SSL" envDefault:"false"`
}

type AuthConfig struct {
	// JWTSecret verifies bearer tokens issued by the auth service.
	JWTSecret string `env:"AUTH_JWT_SECRET" envDefault:"development-secret"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=streamvault"`
}

type MetricsConfig struct {
	Addr string `env:"METRICS_ADDR" envDefault:":9102"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
