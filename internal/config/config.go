package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete OrgMCP configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Keywords   KeywordsConfig   `yaml:"keywords" json:"keywords"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Corpus     CorpusConfig     `yaml:"corpus" json:"corpus"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend.
	// Options: "hash" (default, offline, deterministic) or "openai" (remote API).
	Provider string `yaml:"provider" json:"provider"`

	// Model is the remote model name, used when provider is "openai".
	Model string `yaml:"model" json:"model"`

	// Dimension is the embedding vector dimension. All indexed vectors
	// and query vectors must match it.
	Dimension int `yaml:"dimension" json:"dimension"`

	// CacheSize is the number of embeddings kept in the LRU cache.
	// 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// APIKeyEnv names the environment variable holding the API key
	// for remote providers. The key itself never lives in config files.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
}

// SearchConfig configures hybrid search parameters.
// Weights are configurable via:
//  1. User config (~/.config/orgmcp/config.yaml) - personal defaults
//  2. Project config (.orgmcp.yaml) - per-deployment tuning
//  3. Env vars (ORGMCP_VECTOR_WEIGHT, ORGMCP_KEYWORD_WEIGHT) - highest priority
type SearchConfig struct {
	// VectorWeight is the weight for semantic similarity (0.0-1.0).
	// Must sum to 1.0 with KeywordWeight.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// KeywordWeight is the weight for TF-IDF keyword matching (0.0-1.0).
	// Must sum to 1.0 with VectorWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// DefaultLimit is the result count used when a query does not
	// specify one.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MinScore is the similarity floor. Candidates scoring below it are
	// discarded before fusion.
	MinScore float64 `yaml:"min_score" json:"min_score"`
}

// KeywordsConfig configures the TF-IDF keyword index.
type KeywordsConfig struct {
	// MaxVocabulary caps the number of terms the vectorizer keeps,
	// selected by corpus frequency.
	MaxVocabulary int `yaml:"max_vocabulary" json:"max_vocabulary"`

	// ExtraStopwords are appended to the built-in English stopword set.
	ExtraStopwords []string `yaml:"extra_stopwords" json:"extra_stopwords"`
}

// IndexConfig configures index storage and maintenance.
type IndexConfig struct {
	// Dir is the directory holding index artifacts, the lock file, and
	// the source database. Relative paths resolve against the project root.
	Dir string `yaml:"dir" json:"dir"`

	// RebuildThreshold is the number of mutations (add/update/remove)
	// that triggers an automatic full keyword rebuild.
	RebuildThreshold int `yaml:"rebuild_threshold" json:"rebuild_threshold"`
}

// CorpusConfig configures the optional corpus directory of source records.
type CorpusConfig struct {
	// Dir is a directory of YAML/JSON record files to load on startup.
	// Empty disables corpus loading.
	Dir string `yaml:"dir" json:"dir"`

	// Watch enables live re-indexing when corpus files change.
	Watch bool `yaml:"watch" json:"watch"`

	// DebounceMS is the file-event debounce window in milliseconds.
	DebounceMS int `yaml:"debounce_ms" json:"debounce_ms"`
}

// StorageConfig configures the SQLite source store.
type StorageConfig struct {
	// Database is the SQLite file name, relative to Index.Dir unless absolute.
	Database string `yaml:"database" json:"database"`
}

// TelemetryConfig configures query metrics collection.
type TelemetryConfig struct {
	// Enabled enables in-process query metrics and the persisted
	// aggregates table. Default: true.
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, or error.
	Level string `yaml:"level" json:"level"`

	// File is the log file path. Empty uses the default under ~/.orgmcp/logs.
	File string `yaml:"file" json:"file"`

	// MaxSizeMB is the log size that triggers rotation.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Embeddings: EmbeddingsConfig{
			Provider:  "hash", // Offline and deterministic; no external service needed
			Model:     "text-embedding-3-small",
			Dimension: 384,
			CacheSize: 2048,
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Search: SearchConfig{
			// Semantic similarity carries more signal than keyword overlap
			// for short biographical text, so it gets the larger share.
			VectorWeight:  0.6,
			KeywordWeight: 0.4,
			DefaultLimit:  10,
			MinScore:      0.1,
		},
		Keywords: KeywordsConfig{
			MaxVocabulary:  1000,
			ExtraStopwords: nil,
		},
		Index: IndexConfig{
			Dir:              ".orgmcp",
			RebuildThreshold: 100,
		},
		Corpus: CorpusConfig{
			Dir:        "", // Empty disables corpus loading
			Watch:      false,
			DebounceMS: 200,
		},
		Storage: StorageConfig{
			Database: "knowledge.db",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "", // Empty uses DefaultLogPath
			MaxSizeMB: 10,
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/orgmcp/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/orgmcp/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "orgmcp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback - should rarely happen
		return filepath.Join(os.TempDir(), ".config", "orgmcp", "config.yaml")
	}
	return filepath.Join(home, ".config", "orgmcp", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/orgmcp/config.yaml)
//  3. Project config (.orgmcp.yaml in project root)
//  4. Environment variables (ORGMCP_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	// Step 1: Load user/global config (if exists)
	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	// Step 2: Load project config (overrides user config)
	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// Step 3: Apply environment variable overrides (highest precedence)
	cfg.applyEnvOverrides()

	// Step 4: Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .orgmcp.yaml or .orgmcp.yml.
func (c *Config) loadFromFile(dir string) error {
	// Try .yaml first (takes precedence)
	yamlPath := filepath.Join(dir, ".orgmcp.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	// Try .yml as fallback
	ymlPath := filepath.Join(dir, ".orgmcp.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Use a temporary struct for parsing to detect type errors
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Merge parsed values with defaults (only non-zero values)
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimension != 0 {
		c.Embeddings.Dimension = other.Embeddings.Dimension
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.APIKeyEnv != "" {
		c.Embeddings.APIKeyEnv = other.Embeddings.APIKeyEnv
	}

	// Search weights
	// Note: 0 is not a practical value for weights, so we only merge non-zero values
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MinScore != 0 {
		c.Search.MinScore = other.Search.MinScore
	}

	// Keywords
	if other.Keywords.MaxVocabulary != 0 {
		c.Keywords.MaxVocabulary = other.Keywords.MaxVocabulary
	}
	if len(other.Keywords.ExtraStopwords) > 0 {
		// Merge with defaults rather than replace
		c.Keywords.ExtraStopwords = append(c.Keywords.ExtraStopwords, other.Keywords.ExtraStopwords...)
	}

	// Index
	if other.Index.Dir != "" {
		c.Index.Dir = other.Index.Dir
	}
	if other.Index.RebuildThreshold != 0 {
		c.Index.RebuildThreshold = other.Index.RebuildThreshold
	}

	// Corpus
	if other.Corpus.Dir != "" {
		c.Corpus.Dir = other.Corpus.Dir
	}
	// Watch defaults to false, so merging a true value is unambiguous
	if other.Corpus.Watch {
		c.Corpus.Watch = other.Corpus.Watch
	}
	if other.Corpus.DebounceMS != 0 {
		c.Corpus.DebounceMS = other.Corpus.DebounceMS
	}

	// Storage
	if other.Storage.Database != "" {
		c.Storage.Database = other.Storage.Database
	}

	// Telemetry
	// Enabled defaults to true, and yaml.Unmarshal cannot distinguish an
	// explicit false from unset. Opting out goes through ORGMCP_TELEMETRY.
	if other.Telemetry.Enabled {
		c.Telemetry.Enabled = other.Telemetry.Enabled
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
}

// applyEnvOverrides applies ORGMCP_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Search weights (support explicit zero values via env vars)
	if v := os.Getenv("ORGMCP_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("ORGMCP_KEYWORD_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("ORGMCP_MIN_SCORE"); v != "" {
		if s, err := parseFloat64(v); err == nil && s >= 0 && s <= 1 {
			c.Search.MinScore = s
		}
	}
	if v := os.Getenv("ORGMCP_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.DefaultLimit = n
		}
	}

	if v := os.Getenv("ORGMCP_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// ORGMCP_EMBEDDER is an alias for ORGMCP_EMBEDDINGS_PROVIDER
	if v := os.Getenv("ORGMCP_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("ORGMCP_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("ORGMCP_EMBEDDINGS_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimension = n
		}
	}

	if v := os.Getenv("ORGMCP_MAX_VOCABULARY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Keywords.MaxVocabulary = n
		}
	}

	if v := os.Getenv("ORGMCP_INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := os.Getenv("ORGMCP_REBUILD_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.RebuildThreshold = n
		}
	}

	if v := os.Getenv("ORGMCP_CORPUS_DIR"); v != "" {
		c.Corpus.Dir = v
	}
	if v := os.Getenv("ORGMCP_WATCH"); v != "" {
		c.Corpus.Watch = strings.ToLower(v) == "true" || v == "1"
	}

	if v := os.Getenv("ORGMCP_DATABASE"); v != "" {
		c.Storage.Database = v
	}

	if v := os.Getenv("ORGMCP_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = strings.ToLower(v) == "true" || v == "1"
	}

	if v := os.Getenv("ORGMCP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ORGMCP_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	// Validate search weights
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}

	// Validate weight sum
	sum := c.Search.VectorWeight + c.Search.KeywordWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("vector_weight + keyword_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("min_score must be between 0 and 1, got %f", c.Search.MinScore)
	}
	if c.Search.DefaultLimit < 0 {
		return fmt.Errorf("default_limit must be non-negative, got %d", c.Search.DefaultLimit)
	}

	// Validate embeddings
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}
	if c.Embeddings.Provider != "" { // Empty string falls back to the default provider
		validProviders := map[string]bool{"hash": true, "openai": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'hash', 'openai', or empty (default), got %s", c.Embeddings.Provider)
		}
	}

	// Validate keyword index
	if c.Keywords.MaxVocabulary <= 0 {
		return fmt.Errorf("keywords.max_vocabulary must be positive, got %d", c.Keywords.MaxVocabulary)
	}

	// Validate index maintenance
	if c.Index.RebuildThreshold <= 0 {
		return fmt.Errorf("index.rebuild_threshold must be positive, got %d", c.Index.RebuildThreshold)
	}

	if c.Corpus.DebounceMS < 0 {
		return fmt.Errorf("corpus.debounce_ms must be non-negative, got %d", c.Corpus.DebounceMS)
	}

	// Validate log level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	if c.Logging.MaxSizeMB < 0 {
		return fmt.Errorf("logging.max_size_mb must be non-negative, got %d", c.Logging.MaxSizeMB)
	}

	return nil
}

// IndexDir resolves the index directory against the project root.
// An absolute Index.Dir is used as-is.
func (c *Config) IndexDir(root string) string {
	if filepath.IsAbs(c.Index.Dir) {
		return c.Index.Dir
	}
	return filepath.Join(root, c.Index.Dir)
}

// DatabasePath resolves the SQLite database path against the index directory.
// An absolute Storage.Database is used as-is.
func (c *Config) DatabasePath(root string) string {
	if filepath.IsAbs(c.Storage.Database) {
		return c.Storage.Database
	}
	return filepath.Join(c.IndexDir(root), c.Storage.Database)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing values.
// Returns a list of field names that were added with their default values.
// Used by `orgmcp config upgrade` on config files written by older releases.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Search.MinScore == 0 {
		c.Search.MinScore = defaults.Search.MinScore
		added = append(added, "search.min_score")
	}
	if c.Search.DefaultLimit == 0 {
		c.Search.DefaultLimit = defaults.Search.DefaultLimit
		added = append(added, "search.default_limit")
	}

	if c.Embeddings.CacheSize == 0 {
		c.Embeddings.CacheSize = defaults.Embeddings.CacheSize
		added = append(added, "embeddings.cache_size")
	}
	if c.Embeddings.APIKeyEnv == "" {
		c.Embeddings.APIKeyEnv = defaults.Embeddings.APIKeyEnv
		added = append(added, "embeddings.api_key_env")
	}

	if c.Keywords.MaxVocabulary == 0 {
		c.Keywords.MaxVocabulary = defaults.Keywords.MaxVocabulary
		added = append(added, "keywords.max_vocabulary")
	}

	if c.Index.RebuildThreshold == 0 {
		c.Index.RebuildThreshold = defaults.Index.RebuildThreshold
		added = append(added, "index.rebuild_threshold")
	}

	if c.Corpus.DebounceMS == 0 {
		c.Corpus.DebounceMS = defaults.Corpus.DebounceMS
		added = append(added, "corpus.debounce_ms")
	}

	if c.Storage.Database == "" {
		c.Storage.Database = defaults.Storage.Database
		added = append(added, "storage.database")
	}

	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
		added = append(added, "logging.max_size_mb")
	}

	return added
}

// FindProjectRoot finds the project root directory.
// It looks for a .orgmcp directory, a .orgmcp.yaml/.yml file, or a .git
// directory by walking up the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".orgmcp")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".orgmcp.yaml")) ||
			fileExists(filepath.Join(currentDir, ".orgmcp.yml")) {
			return currentDir, nil
		}

		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		// Move up one directory
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, return original directory
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
