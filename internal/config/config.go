// Package config loads and validates corpusindex's runtime configuration.
//
// Configuration is layered in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config (~/.config/corpusindex/config.yaml)
//  3. A .env file in the working directory, if present
//  4. Environment variables (highest precedence)
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete corpusindex configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	PDF        PDFConfig        `yaml:"pdf" json:"pdf"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures which directories corpusindex watches and indexes.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig configures hybrid search parameters.
//
// Weights and the RRF constant are configurable only via the user config
// (~/.config/corpusindex/config.yaml); no environment variable sets them.
type SearchConfig struct {
	// RRFConstant is the RRF fusion smoothing parameter (k). Default: 60.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// BM25Backend selects the lexical index backend.
	// Options: "sqlite" (default, concurrent access via FTS5+WAL) or "bleve" (legacy, single-process).
	BM25Backend string `yaml:"bm25_backend" json:"bm25_backend"`

	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxResults   int `yaml:"max_results" json:"max_results"`

	// RerankEnabled turns on the optional cross-encoder-style rerank stage.
	RerankEnabled bool    `yaml:"rerank_enabled" json:"rerank_enabled"`
	RerankModel   string  `yaml:"rerank_model" json:"rerank_model"`
	RerankWeight  float64 `yaml:"rerank_weight" json:"rerank_weight"` // weight applied to the rerank score; (1-weight) applied to the original
}

// EmbeddingsConfig configures the embedding/VLM provider.
type EmbeddingsConfig struct {
	Model                string        `yaml:"model" json:"model"`
	VLMModel             string        `yaml:"vlm_model" json:"vlm_model"`
	Dimensions           int           `yaml:"dimensions" json:"dimensions"`
	BatchSize            int           `yaml:"batch_size" json:"batch_size"`
	ModelDownloadTimeout time.Duration `yaml:"model_download_timeout" json:"model_download_timeout"`

	// OllamaHost is the Ollama-compatible API endpoint used for both embedding and VLM calls.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// Thermal management settings for sustained embedding/VLM workloads.
	InterBatchDelay        string  `yaml:"inter_batch_delay" json:"inter_batch_delay"`
	TimeoutProgression     float64 `yaml:"timeout_progression" json:"timeout_progression"`
	RetryTimeoutMultiplier float64 `yaml:"retry_timeout_multiplier" json:"retry_timeout_multiplier"`
}

// PDFConfig configures PDF extraction and the VLM fallback engine (C9).
type PDFConfig struct {
	UseMarkdown     bool          `yaml:"use_markdown" json:"use_markdown"`
	MinCharsPerPage int           `yaml:"min_chars_per_page" json:"min_chars_per_page"`
	VLMFallback     bool          `yaml:"vlm_fallback" json:"vlm_fallback"`
	VLMDPI          int           `yaml:"vlm_dpi" json:"vlm_dpi"`
	VLMTimeout      time.Duration `yaml:"vlm_timeout" json:"vlm_timeout"`
	VLMMaxPages     int           `yaml:"vlm_max_pages" json:"vlm_max_pages"`
	VLMWorkers      int           `yaml:"vlm_workers" json:"vlm_workers"`
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`
	SQLiteCacheMB int    `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`
	QueueCapacity int    `yaml:"queue_capacity" json:"queue_capacity"`
	MaxRetries    int    `yaml:"max_retries" json:"max_retries"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	DataDir  string `yaml:"data_dir" json:"data_dir"`
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Include: []string{},
			Exclude: []string{},
		},
		Search: SearchConfig{
			RRFConstant:   60,
			BM25Backend:   "sqlite",
			ChunkSize:     800,
			ChunkOverlap:  200,
			MaxResults:    20,
			RerankEnabled: false,
			RerankModel:   "",
			RerankWeight:  0.7,
		},
		Embeddings: EmbeddingsConfig{
			Model:                  "nomic-embed-text",
			VLMModel:               "llava",
			Dimensions:             0, // auto-detected from the embedder on first call
			BatchSize:              32,
			ModelDownloadTimeout:   10 * time.Minute,
			OllamaHost:             "http://localhost:11434",
			InterBatchDelay:        "",
			TimeoutProgression:     1.0,
			RetryTimeoutMultiplier: 1.0,
		},
		PDF: PDFConfig{
			UseMarkdown:     true,
			MinCharsPerPage: 40,
			VLMFallback:     true,
			VLMDPI:          150,
			VLMTimeout:      60 * time.Second,
			VLMMaxPages:     0,
			VLMWorkers:      2,
		},
		Performance: PerformanceConfig{
			IndexWorkers:  runtime.NumCPU(),
			WatchDebounce: "200ms",
			CacheSize:     1000,
			SQLiteCacheMB: 64,
			QueueCapacity: 10000,
			MaxRetries:    3,
		},
		Server: ServerConfig{
			Host:     "localhost",
			Port:     8080,
			LogLevel: "info",
			DataDir:  defaultDataDir(),
		},
	}
}

// defaultDataDir returns ~/.corpusindex/data, falling back to a temp directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".corpusindex", "data")
	}
	return filepath.Join(home, ".corpusindex", "data")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "corpusindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "corpusindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "corpusindex", "config.yaml")
}

// Load builds the final configuration: defaults, overlaid with the user
// config file (if present), a .env file in dir (if present), then environment
// variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config from %s: %w", userPath, err)
		}
	}

	loadDotEnv(filepath.Join(dir, ".env"))
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML parses path and merges its non-zero fields into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.BM25Backend != "" {
		c.Search.BM25Backend = other.Search.BM25Backend
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.RerankModel != "" {
		c.Search.RerankModel = other.Search.RerankModel
		c.Search.RerankEnabled = true
	}
	if other.Search.RerankWeight != 0 {
		c.Search.RerankWeight = other.Search.RerankWeight
	}

	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.VLMModel != "" {
		c.Embeddings.VLMModel = other.Embeddings.VLMModel
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.InterBatchDelay != "" {
		c.Embeddings.InterBatchDelay = other.Embeddings.InterBatchDelay
	}
	if other.Embeddings.TimeoutProgression != 0 {
		c.Embeddings.TimeoutProgression = other.Embeddings.TimeoutProgression
	}
	if other.Embeddings.RetryTimeoutMultiplier != 0 {
		c.Embeddings.RetryTimeoutMultiplier = other.Embeddings.RetryTimeoutMultiplier
	}

	if other.PDF.MinCharsPerPage != 0 {
		c.PDF.MinCharsPerPage = other.PDF.MinCharsPerPage
	}
	if other.PDF.VLMDPI != 0 {
		c.PDF.VLMDPI = other.PDF.VLMDPI
	}
	if other.PDF.VLMTimeout != 0 {
		c.PDF.VLMTimeout = other.PDF.VLMTimeout
	}
	if other.PDF.VLMMaxPages != 0 {
		c.PDF.VLMMaxPages = other.PDF.VLMMaxPages
	}
	if other.PDF.VLMWorkers != 0 {
		c.PDF.VLMWorkers = other.PDF.VLMWorkers
	}

	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}
	if other.Performance.SQLiteCacheMB != 0 {
		c.Performance.SQLiteCacheMB = other.Performance.SQLiteCacheMB
	}
	if other.Performance.QueueCapacity != 0 {
		c.Performance.QueueCapacity = other.Performance.QueueCapacity
	}
	if other.Performance.MaxRetries != 0 {
		c.Performance.MaxRetries = other.Performance.MaxRetries
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.DataDir != "" {
		c.Server.DataDir = other.Server.DataDir
	}
}

// loadDotEnv reads a simple KEY=VALUE .env file into the process environment,
// without overwriting variables already set. Missing file is not an error.
func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, set := os.LookupEnv(key); !set {
			_ = os.Setenv(key, value)
		}
	}
}

// applyEnvOverrides applies the environment variables named in §6 of the
// specification. Environment variables win over every other source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("API_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Server.DataDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("VLM_MODEL"); v != "" {
		c.Embeddings.VLMModel = v
	}
	if v := os.Getenv("RERANKER_MODEL"); v != "" {
		c.Search.RerankModel = v
		c.Search.RerankEnabled = true
	}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.ChunkSize = n
		}
	}
	if v := os.Getenv("CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.ChunkOverlap = n
		}
	}
	if v := os.Getenv("PDF_USE_MARKDOWN"); v != "" {
		c.PDF.UseMarkdown = parseBool(v, c.PDF.UseMarkdown)
	}
	if v := os.Getenv("PDF_MIN_CHARS_PER_PAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PDF.MinCharsPerPage = n
		}
	}
	if v := os.Getenv("PDF_VLM_FALLBACK"); v != "" {
		c.PDF.VLMFallback = parseBool(v, c.PDF.VLMFallback)
	}
	if v := os.Getenv("PDF_VLM_DPI"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PDF.VLMDPI = n
		}
	}
	if v := os.Getenv("PDF_VLM_MODEL"); v != "" {
		c.Embeddings.VLMModel = v
	}
	if v := os.Getenv("PDF_VLM_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PDF.VLMTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("PDF_VLM_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PDF.VLMMaxPages = n
		}
	}
	if v := os.Getenv("PDF_VLM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PDF.VLMWorkers = n
		}
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Validate checks the configuration for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.BM25Backend != "sqlite" && c.Search.BM25Backend != "bleve" {
		return fmt.Errorf("search.bm25_backend must be 'sqlite' or 'bleve', got %q", c.Search.BM25Backend)
	}
	if c.Search.ChunkSize <= 0 {
		return fmt.Errorf("search.chunk_size must be positive, got %d", c.Search.ChunkSize)
	}
	if c.Search.ChunkOverlap < 0 || c.Search.ChunkOverlap >= c.Search.ChunkSize {
		return fmt.Errorf("search.chunk_overlap must be in [0, chunk_size), got %d", c.Search.ChunkOverlap)
	}
	if c.Search.RerankWeight < 0 || c.Search.RerankWeight > 1 {
		return fmt.Errorf("search.rerank_weight must be in [0,1], got %f", c.Search.RerankWeight)
	}
	if c.PDF.VLMWorkers < 0 {
		return fmt.Errorf("pdf.vlm_workers must be >= 0, got %d", c.PDF.VLMWorkers)
	}
	if c.PDF.VLMMaxPages < 0 {
		return fmt.Errorf("pdf.vlm_max_pages must be >= 0, got %d", c.PDF.VLMMaxPages)
	}
	if c.Performance.QueueCapacity <= 0 {
		return fmt.Errorf("performance.queue_capacity must be positive, got %d", c.Performance.QueueCapacity)
	}
	if c.Performance.MaxRetries < 0 {
		return fmt.Errorf("performance.max_retries must be >= 0, got %d", c.Performance.MaxRetries)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
