// Package config handles configuration loading and validation for the
// vectier CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VECTIER_ARCHIVE_BUCKET.
const EnvPrefix = "VECTIER"

// Config represents the complete CLI configuration.
type Config struct {
	Dimension  int              `mapstructure:"dimension"`
	Metric     string           `mapstructure:"metric"`
	Index      IndexConfig      `mapstructure:"index"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Log        LogConfig        `mapstructure:"log"`
}

// IndexConfig configures the per-tier graph indexes.
type IndexConfig struct {
	MaxDegree      int     `mapstructure:"max_degree"`
	SearchListSize int     `mapstructure:"search_list_size"`
	Alpha          float64 `mapstructure:"alpha"`
	DegradedRatio  float64 `mapstructure:"degraded_ratio"`
	AutoRepair     bool    `mapstructure:"auto_repair"`
}

// ArchiveConfig configures the archival backend.
type ArchiveConfig struct {
	// Backend is one of memory, local, s3 or minio.
	Backend         string `mapstructure:"backend"`
	Path            string `mapstructure:"path"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Codec           string `mapstructure:"codec"`
	BatchSize       int    `mapstructure:"batch_size"`
	BlockCacheBytes int64  `mapstructure:"block_cache_bytes"`
	MaxScanSize     int    `mapstructure:"max_scan_size"`
}

// CatalogConfig configures the catalog of archived batches.
type CatalogConfig struct {
	// Kind is one of memory, bolt or dynamo.
	Kind  string `mapstructure:"kind"`
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

// EmbeddingsConfig configures the embedding source.
type EmbeddingsConfig struct {
	// Provider is one of hashing or openai.
	Provider string            `mapstructure:"provider"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// LimitsConfig configures resource limits. Zero means unlimited.
type LimitsConfig struct {
	MemoryBytes       int64 `mapstructure:"memory_bytes"`
	BackgroundWorkers int64 `mapstructure:"background_workers"`
	IOBytesPerSec     int64 `mapstructure:"io_bytes_per_sec"`
}

// LogConfig configures CLI logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Dimension: DefaultDimension,
		Metric:    DefaultMetric,
		Index: IndexConfig{
			MaxDegree:      DefaultMaxDegree,
			SearchListSize: DefaultSearchListSize,
			Alpha:          DefaultAlpha,
			DegradedRatio:  DefaultDegradedRatio,
		},
		Archive: ArchiveConfig{
			Backend:   DefaultArchiveBackend,
			Path:      DefaultArchivePath,
			Prefix:    DefaultArchivePrefix,
			Codec:     DefaultCodec,
			BatchSize: DefaultBatchSize,
		},
		Catalog: CatalogConfig{
			Kind:  DefaultCatalogKind,
			Path:  DefaultCatalogPath,
			Table: DefaultCatalogTable,
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			OpenAI:   OpenAIEmbedConfig{Model: DefaultOpenAIEmbedModel},
		},
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Load reads configuration from configFile (optional) and VECTIER_*
// environment variables on top of the defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("vectier")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(dir + "/vectier")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Embeddings.OpenAI.APIKey == "" {
		cfg.Embeddings.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// without a config file.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("dimension", d.Dimension)
	v.SetDefault("metric", d.Metric)

	v.SetDefault("index.max_degree", d.Index.MaxDegree)
	v.SetDefault("index.search_list_size", d.Index.SearchListSize)
	v.SetDefault("index.alpha", d.Index.Alpha)
	v.SetDefault("index.degraded_ratio", d.Index.DegradedRatio)
	v.SetDefault("index.auto_repair", d.Index.AutoRepair)

	v.SetDefault("archive.backend", d.Archive.Backend)
	v.SetDefault("archive.path", d.Archive.Path)
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", d.Archive.Prefix)
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.use_ssl", false)
	v.SetDefault("archive.codec", d.Archive.Codec)
	v.SetDefault("archive.batch_size", d.Archive.BatchSize)
	v.SetDefault("archive.block_cache_bytes", 0)
	v.SetDefault("archive.max_scan_size", 0)

	v.SetDefault("catalog.kind", d.Catalog.Kind)
	v.SetDefault("catalog.path", d.Catalog.Path)
	v.SetDefault("catalog.table", d.Catalog.Table)

	v.SetDefault("embeddings.provider", d.Embeddings.Provider)
	v.SetDefault("embeddings.openai.model", d.Embeddings.OpenAI.Model)
	v.SetDefault("embeddings.openai.base_url", "")
	v.SetDefault("embeddings.openai.api_key", "")

	v.SetDefault("limits.memory_bytes", 0)
	v.SetDefault("limits.background_workers", 0)
	v.SetDefault("limits.io_bytes_per_sec", 0)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	if err := oneOf("archive.backend", c.Archive.Backend, "memory", "local", "s3", "minio"); err != nil {
		return err
	}
	if (c.Archive.Backend == "s3" || c.Archive.Backend == "minio") && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket is required for backend %q", c.Archive.Backend)
	}
	if c.Archive.Backend == "minio" && c.Archive.Endpoint == "" {
		return errors.New("archive.endpoint is required for backend \"minio\"")
	}
	if err := oneOf("catalog.kind", c.Catalog.Kind, "memory", "bolt", "dynamo"); err != nil {
		return err
	}
	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "hashing", "openai"); err != nil {
		return err
	}
	return oneOf("log.format", c.Log.Format, "text", "json")
}

func oneOf(key, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}
