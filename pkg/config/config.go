package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/soundprediction/risposta/pkg/embedder"
	"github.com/soundprediction/risposta/pkg/index"
	"github.com/soundprediction/risposta/pkg/study"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Dataset locations
	Dataset DatasetConfig `mapstructure:"dataset"`

	// Embedder configuration
	Embedder embedder.Config `mapstructure:"embedder"`

	// Indexes configuration
	Indexes IndexesConfig `mapstructure:"indexes"`

	// CircuitBreaker configuration for remote index calls
	CircuitBreaker index.BreakerConfig `mapstructure:"circuit_breaker"`

	// Study persistence configuration
	Study study.StoreConfig `mapstructure:"study"`

	// Hyper holds hyperparameter search settings
	Hyper HyperConfig `mapstructure:"hyper"`

	// Train holds reader training and evaluation settings
	Train TrainConfig `mapstructure:"train"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`

	// TelemetryDir enables parquet capture of warnings and errors when
	// set.
	TelemetryDir string `mapstructure:"telemetry_dir"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatasetConfig locates the question datasets and the knowledge base.
type DatasetConfig struct {
	Train     string `mapstructure:"train"`
	Heldout   string `mapstructure:"heldout"`
	KB        string `mapstructure:"kb"`
	SearchKey string `mapstructure:"search_key"`
	CacheDir  string `mapstructure:"cache_dir"`
}

// IndexesConfig holds the retrieval index layout: one dense index (in
// process or qdrant) and optionally one sparse BM25 index.
type IndexesConfig struct {
	Dense  DenseConfig  `mapstructure:"dense"`
	Sparse SparseConfig `mapstructure:"sparse"`
}

// DenseConfig holds dense index configuration
type DenseConfig struct {
	Backend string             `mapstructure:"backend"` // flat, qdrant
	Name    string             `mapstructure:"name"`
	Qdrant  index.QdrantConfig `mapstructure:"qdrant"`
}

// SparseConfig holds sparse index configuration
type SparseConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Name    string              `mapstructure:"name"`
	Elastic index.ElasticConfig `mapstructure:"elastic"`
}

// HyperConfig holds hyperparameter search settings
type HyperConfig struct {
	Metric    string   `mapstructure:"metric"`
	Metrics   []string `mapstructure:"metrics"`
	Trials    int      `mapstructure:"trials"`
	K         int      `mapstructure:"k"`
	BatchSize int      `mapstructure:"batch_size"`
	OutputDir string   `mapstructure:"output_dir"`
}

// TrainConfig holds training and evaluation settings
type TrainConfig struct {
	M              int    `mapstructure:"m"`
	MaxNAnswers    int    `mapstructure:"max_n_answers"`
	MaxAnswerLen   int    `mapstructure:"max_answer_len"`
	MaxLength      int    `mapstructure:"max_length"`
	BatchSize      int    `mapstructure:"batch_size"`
	Seed           int64  `mapstructure:"seed"`
	CheckpointGlob string `mapstructure:"checkpoint_glob"`
	Oracle         bool   `mapstructure:"oracle"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Dataset defaults
	viper.SetDefault("dataset.search_key", "search")

	// Embedder defaults
	viper.SetDefault("embedder.provider", "embed_everything")
	viper.SetDefault("embedder.model", "all-MiniLM-L6-v2")
	viper.SetDefault("embedder.batch_size", 64)

	// Index defaults
	viper.SetDefault("indexes.dense.backend", "flat")
	viper.SetDefault("indexes.dense.name", "dense")
	viper.SetDefault("indexes.sparse.enabled", false)
	viper.SetDefault("indexes.sparse.name", "bm25")
	viper.SetDefault("indexes.sparse.elastic.index", "passages")

	// Study defaults
	viper.SetDefault("study.backend", "badger")
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("study.path", fmt.Sprintf("%s/.risposta/studies", home))
	}

	// Hyper defaults
	viper.SetDefault("hyper.metric", "mrr@100")
	viper.SetDefault("hyper.trials", 100)
	viper.SetDefault("hyper.k", 100)
	viper.SetDefault("hyper.batch_size", 64)
	viper.SetDefault("hyper.output_dir", "metrics")

	// Train defaults
	viper.SetDefault("train.m", 24)
	viper.SetDefault("train.max_n_answers", 10)
	viper.SetDefault("train.max_answer_len", 10)
	viper.SetDefault("train.max_length", 256)
	viper.SetDefault("train.batch_size", 8)
	viper.SetDefault("train.seed", 0)
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && config.Embedder.APIKey == "" {
		config.Embedder.APIKey = apiKey
	}
	if addr := os.Getenv("ELASTICSEARCH_URL"); addr != "" {
		config.Indexes.Sparse.Elastic.Addresses = []string{addr}
	}
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		config.Indexes.Dense.Qdrant.Host = host
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Study.Backend = "redis"
		config.Study.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		config.Study.Password = pass
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		viper.Set("server.port", port)
	}
}
