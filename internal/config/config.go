// Package config loads docsync settings from a YAML file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bull/docsync/internal/chunker"
)

// ErrConfiguration is returned for a configuration that cannot be used.
var ErrConfiguration = errors.New("invalid configuration")

// Store backends.
const (
	StoreQdrant = "qdrant"
	StoreMemory = "memory"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Config is the complete docsync configuration.
type Config struct {
	WatchDir   string   `yaml:"watch_dir"`
	StateDir   string   `yaml:"state_dir"`  // Defaults to <watch_dir>/.docsync
	Extensions []string `yaml:"extensions"` // Empty means every supported format

	Chunk     ChunkConfig     `yaml:"chunk"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`

	LogLevel string `yaml:"log_level"`
}

// ChunkConfig sets the sliding window, in characters.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// MonitorConfig controls the polling loop.
type MonitorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	MaxUnchanged time.Duration `yaml:"max_unchanged"` // 0 polls until interrupted
	Notify       bool          `yaml:"notify"`        // Wake early on filesystem events
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"-"` // Only from OPENAI_API_KEY
}

// StoreConfig selects and configures the chunk store.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"-"` // Only from QDRANT_API_KEY
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Mode    string `yaml:"mode"` // "stdio" or "http"
	Port    int    `yaml:"port"`
	Results int    `yaml:"results"` // Default passages returned per query
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WatchDir: "data",
		Chunk: ChunkConfig{
			Size:    chunker.DefaultSize,
			Overlap: chunker.DefaultOverlap,
		},
		Monitor: MonitorConfig{
			Interval:     10 * time.Second,
			MaxUnchanged: 60 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			BatchSize: 500,
		},
		Store: StoreConfig{
			Backend:    StoreQdrant,
			Host:       "localhost",
			Port:       6334,
			Collection: "document_chunks",
		},
		Server: ServerConfig{
			Mode:    "stdio",
			Port:    8080,
			Results: 3,
		},
		LogLevel: "info",
	}
}

// Load builds a configuration from defaults, the YAML file at path (optional,
// "" skips it), a .env file in the working directory, and the environment.
// The result is not validated; call Validate after applying flags.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		// Fields absent from the file keep their defaults.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
		}
	}

	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrConfiguration, key, v)
		}
		*dst = n
		return nil
	}
	setDuration := func(key string, dst *time.Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a duration", ErrConfiguration, key, v)
		}
		*dst = d
		return nil
	}

	setString("DOCSYNC_WATCH_DIR", &c.WatchDir)
	setString("DOCSYNC_STATE_DIR", &c.StateDir)
	setString("DOCSYNC_LOG_LEVEL", &c.LogLevel)
	setString("DOCSYNC_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	setString("DOCSYNC_EMBEDDING_MODEL", &c.Embedding.Model)
	setString("DOCSYNC_EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	setString("OPENAI_API_KEY", &c.Embedding.APIKey)
	setString("DOCSYNC_STORE", &c.Store.Backend)
	setString("QDRANT_HOST", &c.Store.Host)
	setString("QDRANT_API_KEY", &c.Store.APIKey)
	setString("DOCSYNC_COLLECTION", &c.Store.Collection)
	setString("SERVER_MODE", &c.Server.Mode)

	if v := os.Getenv("DOCSYNC_EXTENSIONS"); v != "" {
		c.Extensions = splitList(v)
	}

	return errors.Join(
		setInt("DOCSYNC_CHUNK_SIZE", &c.Chunk.Size),
		setInt("DOCSYNC_CHUNK_OVERLAP", &c.Chunk.Overlap),
		setInt("DOCSYNC_EMBEDDING_DIMENSION", &c.Embedding.Dimension),
		setInt("QDRANT_PORT", &c.Store.Port),
		setInt("PORT", &c.Server.Port),
		setDuration("DOCSYNC_INTERVAL", &c.Monitor.Interval),
		setDuration("DOCSYNC_MAX_UNCHANGED", &c.Monitor.MaxUnchanged),
	)
}

// ResolvedStateDir returns StateDir, or <WatchDir>/.docsync when unset.
// The memory backend keeps its record in a "memory" subdirectory, apart
// from the one that describes the persistent store.
func (c *Config) ResolvedStateDir() string {
	dir := c.StateDir
	if dir == "" {
		dir = filepath.Join(c.WatchDir, ".docsync")
	}
	if strings.EqualFold(c.Store.Backend, StoreMemory) {
		dir = filepath.Join(dir, StoreMemory)
	}
	return dir
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.WatchDir == "" {
		fail("watch_dir must be set")
	} else if info, err := os.Stat(c.WatchDir); err != nil {
		fail("watch_dir %s: %v", c.WatchDir, err)
	} else if !info.IsDir() {
		fail("watch_dir %s is not a directory", c.WatchDir)
	}

	if err := chunker.Validate(c.Chunk.Size, c.Chunk.Overlap); err != nil {
		fail("chunk: %v", err)
	}

	if c.Monitor.Interval <= 0 {
		fail("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	if c.Monitor.MaxUnchanged < 0 {
		fail("monitor.max_unchanged must not be negative, got %s", c.Monitor.MaxUnchanged)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case ProviderOpenAI:
	case ProviderLocal:
		if c.Embedding.BaseURL == "" {
			fail("embedding.base_url is required for the local provider")
		}
	default:
		fail("embedding.provider must be %q or %q, got %q", ProviderOpenAI, ProviderLocal, c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		fail("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}

	switch strings.ToLower(c.Store.Backend) {
	case StoreQdrant:
		if c.Store.Host == "" || c.Store.Port <= 0 {
			fail("store.host and store.port are required for qdrant")
		}
	case StoreMemory:
	default:
		fail("store.backend must be %q or %q, got %q", StoreQdrant, StoreMemory, c.Store.Backend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		fail("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
