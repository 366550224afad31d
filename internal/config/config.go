// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// Search engine backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineBleve         = "bleve"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Search  SearchConfig  `mapstructure:"search"`
	Reindex ReindexConfig `mapstructure:"reindex"`
	Geo     GeoConfig     `mapstructure:"geo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Storage StorageConfig `mapstructure:"storage"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	CORS            CORSConfig      `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// RateLimitConfig holds request rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"`
	Burst   int     `mapstructure:"burst"`
}

// MongoConfig holds document store configuration.
type MongoConfig struct {
	URI            string           `mapstructure:"uri"`
	Database       string           `mapstructure:"database"`
	ConnectTimeout time.Duration    `mapstructure:"connect_timeout"`
	BatchSize      int              `mapstructure:"batch_size"`
	Collections    CollectionConfig `mapstructure:"collections"`
}

// CollectionConfig names the source collections.
type CollectionConfig struct {
	Hospitals     string `mapstructure:"hospitals"`
	Pharmacies    string `mapstructure:"pharmacies"`
	MapFeatures   string `mapstructure:"map_features"`
	SigunguCoords string `mapstructure:"sigungu_coords"`
}

// SearchConfig selects and configures the search engine.
type SearchConfig struct {
	Engine        string              `mapstructure:"engine"` // elasticsearch, bleve
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Bleve         BleveConfig         `mapstructure:"bleve"`
}

// ElasticsearchConfig holds cluster connection and index settings.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Shards    int      `mapstructure:"shards"`
	Replicas  int      `mapstructure:"replicas"`
	Tokenizer string   `mapstructure:"tokenizer"` // empty uses the standard analyzer
}

// BleveConfig holds embedded index settings.
type BleveConfig struct {
	Path string `mapstructure:"path"` // empty keeps indices in memory
}

// ReindexConfig holds blue-green reindex settings.
type ReindexConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// GeoConfig holds boundary collection and repair settings. SearchCollection
// is the collection the boundaries search index is built from.
type GeoConfig struct {
	CollectionPrefix string        `mapstructure:"collection_prefix"`
	SearchCollection string        `mapstructure:"search_collection"`
	RepairBatchSize  int           `mapstructure:"repair_batch_size"`
	RepairFlushSize  int           `mapstructure:"repair_flush_size"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds the lookup cache configuration.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LedgerConfig holds the reindex ledger configuration.
type LedgerConfig struct {
	Path string `mapstructure:"path"` // empty disables the ledger
}

// StorageConfig holds boundary dataset storage configuration.
type StorageConfig struct {
	Type         string        `mapstructure:"type"` // none, local, s3, azure, http
	LocalPath    string        `mapstructure:"local_path"`
	Watch        bool          `mapstructure:"watch"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	S3           S3Config      `mapstructure:"s3"`
	Azure        AzureConfig   `mapstructure:"azure"`
	HTTP         HTTPConfig    `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"` // default: index.txt
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Domains  []string     `mapstructure:"domains"`
	Email    string       `mapstructure:"email"`
	CacheDir string       `mapstructure:"cache_dir"`
	Staging  bool         `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      TLSDNSConfig `mapstructure:"dns"`
}

// TLSDNSConfig holds the Azure DNS zone used for DNS-01 challenges.
type TLSDNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.rate_limit.enabled", false)
	viper.SetDefault("server.rate_limit.rate", 100.0)
	viper.SetDefault("server.rate_limit.burst", 200)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Mongo defaults
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "hospital")
	viper.SetDefault("mongo.connect_timeout", 10*time.Second)
	viper.SetDefault("mongo.batch_size", 1000)
	viper.SetDefault("mongo.collections.hospitals", "hospitals")
	viper.SetDefault("mongo.collections.pharmacies", "pharmacies")
	viper.SetDefault("mongo.collections.map_features", "map_features")
	viper.SetDefault("mongo.collections.sigungu_coords", "sigungu_coordinates")

	// Search defaults
	viper.SetDefault("search.engine", EngineElasticsearch)
	viper.SetDefault("search.elasticsearch.addresses", []string{"http://localhost:9200"})
	viper.SetDefault("search.elasticsearch.shards", 1)
	viper.SetDefault("search.elasticsearch.replicas", 0)
	viper.SetDefault("search.elasticsearch.tokenizer", "nori_tokenizer")
	viper.SetDefault("search.bleve.path", "")

	// Reindex defaults
	viper.SetDefault("reindex.batch_size", 500)
	viper.SetDefault("reindex.timeout", 30*time.Minute)

	// Geo defaults
	viper.SetDefault("geo.collection_prefix", domain.DefaultBoundaryPrefix)
	viper.SetDefault("geo.search_collection", "boundaries")
	viper.SetDefault("geo.repair_batch_size", 1000)
	viper.SetDefault("geo.repair_flush_size", 500)
	viper.SetDefault("geo.cache_ttl", 24*time.Hour)

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Ledger defaults
	viper.SetDefault("ledger.path", "./data/ledger.db")

	// Storage defaults
	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.local_path", "./datasets")
	viper.SetDefault("storage.watch", true)
	viper.SetDefault("storage.sync_interval", time.Hour)
	viper.SetDefault("storage.http.index_file", "index.txt")
	viper.SetDefault("storage.http.timeout", 5*time.Minute)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.namespace", "hospigeo")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("HOSPIGEO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/hospigeo")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.Rate <= 0 || c.Server.RateLimit.Burst < 1) {
		return invalid("server.rate_limit", "rate and burst must be positive")
	}

	if c.Mongo.URI == "" {
		return invalid("mongo.uri", "is required")
	}
	if c.Mongo.Database == "" {
		return invalid("mongo.database", "is required")
	}

	switch c.Search.Engine {
	case EngineElasticsearch:
		if len(c.Search.Elasticsearch.Addresses) == 0 {
			return invalid("search.elasticsearch.addresses", "at least one address is required")
		}
		if c.Search.Elasticsearch.Shards < 0 || c.Search.Elasticsearch.Replicas < 0 {
			return invalid("search.elasticsearch", "shards and replicas must not be negative")
		}
	case EngineBleve:
	default:
		return invalid("search.engine", "unknown engine %q", c.Search.Engine)
	}

	if c.Reindex.BatchSize < 1 {
		return invalid("reindex.batch_size", "must be positive")
	}
	if c.Geo.CollectionPrefix == "" {
		return invalid("geo.collection_prefix", "is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return invalid("redis.addr", "is required when redis is enabled")
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return invalid("tls.domains", "TLS enabled but no domains specified")
		}
		if c.TLS.Email == "" {
			return invalid("tls.email", "TLS enabled but no email specified")
		}
	}

	return c.validateStorage()
}

func (c *Config) validateStorage() error {
	switch c.Storage.Type {
	case "", "none":
		return nil
	case "local":
		if c.Storage.LocalPath == "" {
			return invalid("storage.local_path", "local storage path is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return invalid("storage.s3.bucket", "S3 bucket is required")
		}
		if c.Storage.S3.Region == "" {
			return invalid("storage.s3.region", "S3 region is required")
		}
	case "azure":
		if c.Storage.Azure.Container == "" {
			return invalid("storage.azure.container", "azure container is required")
		}
		if c.Storage.Azure.AccountName == "" && c.Storage.Azure.ConnectionString == "" {
			return invalid("storage.azure", "azure account name or connection string is required")
		}
	case "http":
		if c.Storage.HTTP.BaseURL == "" {
			return invalid("storage.http.base_url", "HTTP base URL is required")
		}
	default:
		return invalid("storage.type", "unknown storage type %q", c.Storage.Type)
	}
	if c.Storage.SyncInterval < 0 {
		return invalid("storage.sync_interval", "must not be negative")
	}
	return nil
}

// StorageEnabled reports whether a dataset storage backend is configured.
func (c *StorageConfig) StorageEnabled() bool {
	return c.Type != "" && c.Type != "none"
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func invalid(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}
