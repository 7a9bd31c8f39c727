package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int               `json:"port"`
	Database    DatabaseConfig    `json:"database"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	FileStore   FileStoreConfig   `json:"file_store"`
	AI          AIConfig          `json:"ai"`
	RAG         RAGConfig         `json:"rag"`
	VectorIndex VectorIndexConfig `json:"vector_index"`
	Upload      UploadConfig      `json:"upload"`
	Ingest      IngestConfig      `json:"ingest"`
	Jobs        JobsConfig        `json:"jobs"`
	CORS        []string          `json:"cors"`
	// AskRateLimitSeconds is the minimum interval between ask calls of one session.
	AskRateLimitSeconds int `json:"ask_rate_limit_seconds"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ProviderConfig struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type RetryConfig struct {
	MaxAttempts      int     `json:"max_attempts"`
	InitialBackoffMs int     `json:"initial_backoff_ms"`
	MaxBackoffMs     int     `json:"max_backoff_ms"`
	TimeoutMs        int     `json:"timeout_ms"`
	RatePerSecond    float64 `json:"rate_per_second"`
	Burst            int     `json:"burst"`
}

type AIConfig struct {
	Providers     []ProviderConfig `json:"providers"`
	Completion    []ModelRef       `json:"completion"`
	Embedding     ModelRef         `json:"embedding"`
	Summary       []ModelRef       `json:"summary"`
	MaxInputChars int              `json:"max_input_chars"`
	EmbedRetry    RetryConfig      `json:"embed_retry"`
	CompleteRetry RetryConfig      `json:"complete_retry"`
	// EmbedConcurrency bounds parallel embedding calls during ingestion.
	EmbedConcurrency int  `json:"embed_concurrency"`
	CacheSize        int  `json:"cache_size"`
	CacheTTLMinutes  int  `json:"cache_ttl_minutes"`
	DBCache          bool `json:"db_cache"`
}

type RAGConfig struct {
	ChunkSize           int     `json:"chunk_size"`
	ChunkOverlap        int     `json:"chunk_overlap"`
	TopK                int     `json:"top_k"`
	MinScore            float64 `json:"min_score"`
	Dimension           int     `json:"dimension"`
	CandidateMultiplier int     `json:"candidate_multiplier"`
	HistoryMessages     int     `json:"history_messages"`
	EmbedMaxInputChars  int     `json:"embed_max_input_chars"`
}

type VectorIndexConfig struct {
	Type string `json:"type"`
}

type UploadConfig struct {
	MaxFileSize       int64 `json:"max_file_size"`
	KeepFileThreshold int64 `json:"keep_file_threshold"`
}

type IngestConfig struct {
	Workers        int `json:"workers"`
	QueueSize      int `json:"queue_size"`
	TimeoutMinutes int `json:"timeout_minutes"`
}

type JobsConfig struct {
	RetentionSpec          string `json:"retention_spec"`
	RetentionDays          int    `json:"retention_days"`
	EmbeddingCacheSpec     string `json:"embedding_cache_spec"`
	EmbeddingCacheMaxDays  int    `json:"embedding_cache_max_days"`
	StaleIngestSpec        string `json:"stale_ingest_spec"`
	StaleProcessingMinutes int    `json:"stale_processing_minutes"`
}

// Load reads a json or yaml config file. ${VAR} references are expanded from
// the environment before decoding.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	return Parse(raw, filepath.Ext(path))
}

func Parse(raw []byte, ext string) (*Config, error) {
	raw = []byte(os.ExpandEnv(string(raw)))
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var m map[string]interface{}
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode yaml config: %w", err)
		}
		raw = data
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	if cfg.VectorIndex.Type == "" {
		cfg.VectorIndex.Type = "pgvector"
	}
	switch cfg.VectorIndex.Type {
	case "pgvector", "memory":
	default:
		return fmt.Errorf("vector_index.type must be pgvector or memory")
	}
	rag := &cfg.RAG
	if rag.ChunkSize == 0 {
		rag.ChunkSize = 1000
	}
	if rag.ChunkOverlap == 0 {
		rag.ChunkOverlap = 200
	}
	if rag.ChunkSize <= rag.ChunkOverlap || rag.ChunkOverlap < 0 {
		return fmt.Errorf("rag.chunk_size must be greater than rag.chunk_overlap")
	}
	if rag.TopK <= 0 {
		rag.TopK = 5
	}
	if rag.MinScore == 0 {
		rag.MinScore = 0.7
	}
	if rag.MinScore < 0 || rag.MinScore > 1 {
		return fmt.Errorf("rag.min_score must be within [0,1]")
	}
	if rag.Dimension <= 0 {
		rag.Dimension = 384
	}
	if rag.CandidateMultiplier <= 0 {
		rag.CandidateMultiplier = 2
	}
	if rag.HistoryMessages <= 0 {
		rag.HistoryMessages = 6
	}
	if rag.EmbedMaxInputChars <= 0 {
		rag.EmbedMaxInputChars = 8000
	}
	ai := &cfg.AI
	if ai.Embedding.Provider == "" {
		ai.Embedding = ModelRef{Provider: "local", Model: "hash-embedding"}
		if !hasProvider(ai.Providers, "local") {
			ai.Providers = append(ai.Providers, ProviderConfig{Name: "local", Type: "local"})
		}
	}
	if len(ai.Summary) == 0 {
		ai.Summary = ai.Completion
	}
	if ai.MaxInputChars <= 0 {
		ai.MaxInputChars = 12000
	}
	fillRetry(&ai.EmbedRetry, 3, 500, 4000, 10000)
	fillRetry(&ai.CompleteRetry, 3, 1000, 8000, 60000)
	if ai.EmbedConcurrency <= 0 {
		ai.EmbedConcurrency = 4
	}
	if ai.CacheSize == 0 {
		ai.CacheSize = 10000
	}
	if ai.CacheTTLMinutes == 0 {
		ai.CacheTTLMinutes = 120
	}
	if cfg.Upload.MaxFileSize <= 0 {
		cfg.Upload.MaxFileSize = 100 * 1024 * 1024
	}
	if cfg.Upload.KeepFileThreshold <= 0 {
		cfg.Upload.KeepFileThreshold = 50 * 1024 * 1024
	}
	if cfg.Ingest.Workers <= 0 {
		cfg.Ingest.Workers = 2
	}
	if cfg.Ingest.QueueSize <= 0 {
		cfg.Ingest.QueueSize = 64
	}
	if cfg.Ingest.TimeoutMinutes <= 0 {
		cfg.Ingest.TimeoutMinutes = 30
	}
	jobs := &cfg.Jobs
	if jobs.RetentionSpec == "" {
		jobs.RetentionSpec = "30 3 * * *"
	}
	if jobs.RetentionDays <= 0 {
		jobs.RetentionDays = 30
	}
	if jobs.EmbeddingCacheSpec == "" {
		jobs.EmbeddingCacheSpec = "0 4 * * *"
	}
	if jobs.EmbeddingCacheMaxDays <= 0 {
		jobs.EmbeddingCacheMaxDays = 30
	}
	if jobs.StaleIngestSpec == "" {
		jobs.StaleIngestSpec = "*/10 * * * *"
	}
	if jobs.StaleProcessingMinutes <= 0 {
		jobs.StaleProcessingMinutes = cfg.Ingest.TimeoutMinutes * 2
	}
	if jobs.StaleProcessingMinutes <= cfg.Ingest.TimeoutMinutes {
		return fmt.Errorf("jobs.stale_processing_minutes must exceed ingest.timeout_minutes")
	}
	return nil
}

func hasProvider(items []ProviderConfig, name string) bool {
	for _, item := range items {
		if item.Name == name {
			return true
		}
	}
	return false
}

func fillRetry(r *RetryConfig, attempts, initialMs, maxMs, timeoutMs int) {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = attempts
	}
	if r.InitialBackoffMs <= 0 {
		r.InitialBackoffMs = initialMs
	}
	if r.MaxBackoffMs <= 0 {
		r.MaxBackoffMs = maxMs
	}
	if r.TimeoutMs <= 0 {
		r.TimeoutMs = timeoutMs
	}
}
