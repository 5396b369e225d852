package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the document QA service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	PDF       PDFConfig       `mapstructure:"pdf"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string        `mapstructure:"address"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTTTL    time.Duration `mapstructure:"jwt_ttl"`
}

// StorageConfig groups the persistence backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Blob     BlobConfig     `mapstructure:"blob"`
}

// PostgresConfig contains relational + vector store settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN constructs a postgres DSN from the configuration.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains the job queue connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

func (r RedisConfig) Validate() error {
	if r.Host == "" || r.Port == "" {
		return fmt.Errorf("redis not configured (storage.redis.host/port)")
	}
	return nil
}

// BlobConfig selects and configures the blob storage backend.
type BlobConfig struct {
	Backend string          `mapstructure:"backend"` // "azure" or "fs"
	Dir     string          `mapstructure:"dir"`     // fs backend root
	Azure   AzureBlobConfig `mapstructure:"azure"`
}

// AzureBlobConfig contains Azure Blob Storage settings.
type AzureBlobConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Container        string `mapstructure:"container"`
}

// LLMConfig contains embedding and completion provider settings.
type LLMConfig struct {
	OpenAI            OpenAIConfig `mapstructure:"openai"`
	EmbeddingFallback string       `mapstructure:"embedding_fallback"` // "", "local"
}

// OpenAIConfig configures the OpenAI-compatible provider.
type OpenAIConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	CompletionModel     string        `mapstructure:"completion_model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	EmbeddingDimensions int           `mapstructure:"embedding_dimensions"`
	Temperature         float64       `mapstructure:"temperature"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// OCRConfig selects and configures the OCR capability.
type OCRConfig struct {
	Backend string         `mapstructure:"backend"` // "azure" or "none"
	Azure   AzureOCRConfig `mapstructure:"azure"`
}

// AzureOCRConfig contains Azure Document Intelligence settings.
type AzureOCRConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	Key        string        `mapstructure:"key"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PDFConfig bounds page extraction.
type PDFConfig struct {
	DPI       int `mapstructure:"dpi"`
	MaxPages  int `mapstructure:"max_pages"`
	BatchSize int `mapstructure:"batch_size"`
}

// ChunkingConfig controls the sliding-window chunker.
type ChunkingConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

// RetrievalConfig tunes the answering engine.
type RetrievalConfig struct {
	TopK               int     `mapstructure:"top_k"`
	RelevanceThreshold float64 `mapstructure:"relevance_threshold"`
	MaxContextChunks   int     `mapstructure:"max_context_chunks"`
	HistoryTurns       int     `mapstructure:"history_turns"`
}

// IngestConfig controls upload validation and the background queue.
type IngestConfig struct {
	MaxFileSize     int64         `mapstructure:"max_file_size"`
	Stream          string        `mapstructure:"stream"`
	Group           string        `mapstructure:"group"`
	JanitorSchedule string        `mapstructure:"janitor_schedule"`
	StuckAfter      time.Duration `mapstructure:"stuck_after"`
}

// Validate fails fast on configuration-class errors so the service never
// serves traffic with a broken provider setup.
func (c *Config) Validate() error {
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("jwt secret not configured (server.jwt_secret)")
	}
	if c.LLM.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI API key not configured (llm.openai.api_key)")
	}
	if c.LLM.OpenAI.EmbeddingDimensions <= 0 {
		return fmt.Errorf("llm.openai.embedding_dimensions must be > 0")
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be smaller than chunking.size")
	}
	if _, err := c.Storage.Postgres.DSN(); err != nil {
		return err
	}
	return c.Storage.Redis.Validate()
}

// LoadConfig reads configuration from file and environment (EBOOKQA_*).
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("server.address", ":10002")
	viper.SetDefault("server.jwt_ttl", "24h")
	viper.SetDefault("storage.blob.backend", "fs")
	viper.SetDefault("storage.blob.dir", "./uploads")
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.openai.completion_model", "gpt-4o-mini")
	viper.SetDefault("llm.openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.openai.embedding_dimensions", 1536)
	viper.SetDefault("llm.openai.temperature", 0.2)
	viper.SetDefault("llm.openai.timeout", "60s")
	viper.SetDefault("ocr.backend", "azure")
	viper.SetDefault("ocr.azure.api_version", "2024-07-31")
	viper.SetDefault("ocr.azure.timeout", "90s")
	viper.SetDefault("pdf.dpi", 150)
	viper.SetDefault("pdf.max_pages", 50)
	viper.SetDefault("pdf.batch_size", 5)
	viper.SetDefault("chunking.size", 1000)
	viper.SetDefault("chunking.overlap", 200)
	viper.SetDefault("retrieval.top_k", 4)
	viper.SetDefault("retrieval.relevance_threshold", 0.7)
	viper.SetDefault("retrieval.max_context_chunks", 15)
	viper.SetDefault("retrieval.history_turns", 6)
	viper.SetDefault("ingest.max_file_size", 100<<20)
	viper.SetDefault("ingest.stream", "ebookqa.ingest")
	viper.SetDefault("ingest.group", "ingestors")
	viper.SetDefault("ingest.janitor_schedule", "*/10 * * * *")
	viper.SetDefault("ingest.stuck_after", "2h")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("EBOOKQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional when everything comes from env.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return &config
}
