package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	DBPath      string            `json:"db_path"`
	Port        int               `json:"port"`
	CORSOrigins []string          `json:"cors_origins"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	FileStore   FileStoreConfig   `json:"file_store"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	AI          AIConfig          `json:"ai"`
	Ingest      IngestConfig      `json:"ingest"`
	Agent       AgentConfig       `json:"agent"`
	ReaperCron  string            `json:"reaper_cron"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VectorStoreConfig struct {
	Type string `json:"type"` // sqlite or pgvector
	DSN  string `json:"dsn"`  // pgvector only
}

type AIConfig struct {
	Provider    string      `json:"provider"`
	Data        interface{} `json:"data"`
	GenModel    string      `json:"gen_model"`
	EmbedModel  string      `json:"embed_model"`
	EmbedDim    int         `json:"embed_dim"`
	VisionModel string      `json:"vision_model"`
	TimeoutSecs int         `json:"timeout_secs"`
}

type IngestConfig struct {
	ChunkTokens      int `json:"chunk_tokens"`
	ChunkOverlap     int `json:"chunk_overlap"`
	BoundaryLookback int `json:"boundary_lookback"`
	EmbedBatchSize   int `json:"embed_batch_size"`
	DescribeWorkers  int `json:"describe_workers"`
	MaxRetries       int `json:"max_retries"`
	MinImageBytes    int `json:"min_image_bytes"`
	SearchTopK       int `json:"search_top_k"`
}

type AgentConfig struct {
	Command     string   `json:"command"`
	Args        []string `json:"args"`
	TimeoutSecs int      `json:"timeout_secs"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path is required")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Type == "pgvector" && cfg.VectorStore.DSN == "" {
		return nil, fmt.Errorf("vector_store.dsn is required for pgvector")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.EmbedDim == 0 {
		cfg.AI.EmbedDim = 1536
	}
	if cfg.AI.VisionModel == "" {
		cfg.AI.VisionModel = cfg.AI.GenModel
	}
	if cfg.AI.TimeoutSecs == 0 {
		cfg.AI.TimeoutSecs = 60
	}
	applyIngestDefaults(&cfg.Ingest)
	if cfg.Agent.Command == "" {
		return nil, fmt.Errorf("agent.command is required")
	}
	if cfg.Agent.TimeoutSecs == 0 {
		cfg.Agent.TimeoutSecs = 300
	}
	if cfg.ReaperCron == "" {
		cfg.ReaperCron = "*/10 * * * *"
	}
	return &cfg, nil
}

func applyIngestDefaults(cfg *IngestConfig) {
	if cfg.ChunkTokens == 0 {
		cfg.ChunkTokens = 400
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = 60
	}
	if cfg.ChunkOverlap >= cfg.ChunkTokens {
		cfg.ChunkOverlap = cfg.ChunkTokens / 4
	}
	if cfg.BoundaryLookback == 0 {
		cfg.BoundaryLookback = 30
	}
	if cfg.EmbedBatchSize == 0 {
		cfg.EmbedBatchSize = 64
	}
	if cfg.DescribeWorkers == 0 {
		cfg.DescribeWorkers = 4
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MinImageBytes == 0 {
		cfg.MinImageBytes = 5000
	}
	if cfg.SearchTopK == 0 {
		cfg.SearchTopK = 5
	}
}
