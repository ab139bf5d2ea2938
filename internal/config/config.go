// Package config loads runtime configuration from defaults, an optional
// YAML file, and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/retriever"
	"github.com/bull/docchat/internal/synthesis"
	"github.com/bull/docchat/internal/vectorstore"
)

// Backend selection values.
const (
	VectorBackendLocal  = "local"
	VectorBackendQdrant = "qdrant"

	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderOllama = "ollama"
)

// Config is the resolved runtime configuration.
type Config struct {
	Chunk     ChunkConfig     `yaml:"chunk"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chat      ChatConfig      `yaml:"chat"`
	Docstore  DocstoreConfig  `yaml:"docstore"`
	Server    ServerConfig    `yaml:"server"`
}

// ChunkConfig sets the text window parameters.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	OllamaURL  string `yaml:"ollama_url"`
}

// VectorConfig selects and configures the vector store backend.
type VectorConfig struct {
	Backend      string `yaml:"backend"`
	QdrantHost   string `yaml:"qdrant_host"`
	QdrantPort   int    `yaml:"qdrant_port"`
	Collection   string `yaml:"collection"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// RetrievalConfig sets the relevance parameters.
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

// ChatConfig configures answer synthesis.
type ChatConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// DocstoreConfig selects document persistence. An empty path keeps records
// in memory only.
type DocstoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the serving surface.
type ServerConfig struct {
	Port     string `yaml:"port"`
	HTTPMode bool   `yaml:"http_mode"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Chunk: ChunkConfig{
			Size:    chunker.DefaultSize,
			Overlap: chunker.DefaultOverlap,
		},
		Embedding: EmbeddingConfig{
			Provider:   EmbeddingProviderOpenAI,
			Model:      embedding.DefaultOpenAIModel,
			Dimensions: embedding.DefaultOpenAIDimensions,
		},
		Vector: VectorConfig{
			Backend:    VectorBackendLocal,
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: vectorstore.DefaultCollection,
		},
		Retrieval: RetrievalConfig{
			TopK:      retriever.DefaultTopK,
			Threshold: retriever.DefaultThreshold,
		},
		Chat: ChatConfig{
			Model: synthesis.DefaultChatModel,
		},
		Server: ServerConfig{
			Port: "8080",
		},
	}
}

// Load resolves the configuration. The YAML file at path overlays the
// defaults; a missing file at the default location is fine, a missing file
// named explicitly is an error. Environment variables override both.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = getEnv("DOCCHAT_CONFIG", "docchat.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// No config file; defaults plus environment.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Chunk.Size = getEnvInt("CHUNK_SIZE", c.Chunk.Size)
	c.Chunk.Overlap = getEnvInt("CHUNK_OVERLAP", c.Chunk.Overlap)

	c.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)
	c.Embedding.OllamaURL = getEnv("OLLAMA_URL", c.Embedding.OllamaURL)

	c.Vector.Backend = getEnv("VECTOR_BACKEND", c.Vector.Backend)
	c.Vector.QdrantHost = getEnv("QDRANT_HOST", c.Vector.QdrantHost)
	c.Vector.QdrantPort = getEnvInt("QDRANT_PORT", c.Vector.QdrantPort)
	c.Vector.Collection = getEnv("QDRANT_COLLECTION", c.Vector.Collection)
	c.Vector.SnapshotPath = getEnv("VECTOR_SNAPSHOT_PATH", c.Vector.SnapshotPath)

	c.Retrieval.TopK = getEnvInt("RETRIEVAL_TOP_K", c.Retrieval.TopK)
	c.Retrieval.Threshold = getEnvFloat("RETRIEVAL_THRESHOLD", c.Retrieval.Threshold)

	c.Chat.Model = getEnv("CHAT_MODEL", c.Chat.Model)
	c.Chat.Temperature = getEnvFloat("CHAT_TEMPERATURE", c.Chat.Temperature)
	c.Chat.MaxTokens = getEnvInt("CHAT_MAX_TOKENS", c.Chat.MaxTokens)

	c.Docstore.Path = getEnv("DOCSTORE_PATH", c.Docstore.Path)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.HTTPMode = getEnv("SERVER_MODE", "") == "true" || c.Server.HTTPMode
}

func (c *Config) validate() error {
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk size %d must be positive", c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk overlap %d must be in [0, %d)", c.Chunk.Overlap, c.Chunk.Size)
	}
	switch c.Vector.Backend {
	case VectorBackendLocal, VectorBackendQdrant:
	default:
		return fmt.Errorf("unknown vector backend %q", c.Vector.Backend)
	}
	switch c.Embedding.Provider {
	case EmbeddingProviderOpenAI, EmbeddingProviderOllama:
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k %d must be positive", c.Retrieval.TopK)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval threshold %g must be in [0, 1]", c.Retrieval.Threshold)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
