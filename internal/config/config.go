package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/ragstream/internal/domain/facet"
)

// Config holds the ragstream API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Facets     FacetsConfig     `yaml:"facets"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
	// File enables a rotating log file next to console output.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // covers a whole answer stream
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ProviderConfig holds OpenAI-compatible endpoint settings.
type ProviderConfig struct {
	Name    string `yaml:"name"` // metric label
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	OrgID   string `yaml:"org_id"`
}

// EmbeddingConfig holds query embedding settings.
type EmbeddingConfig struct {
	Provider         ProviderConfig `yaml:"provider"`
	Model            string         `yaml:"model"`
	Dimensions       int            `yaml:"dimensions"`
	QueryInstruction string         `yaml:"query_instruction"`
	Cache            CacheConfig    `yaml:"cache"`
}

// CacheConfig holds embedding cache settings. A zero TTL disables that tier.
type CacheConfig struct {
	Enabled      bool   `yaml:"enabled"`
	KeyPrefix    string `yaml:"key_prefix"`
	TTLSec       int    `yaml:"ttl_sec"`
	MemoryTTLSec int    `yaml:"memory_ttl_sec"`
}

// ModelConfig holds sampling settings for one answer strategy.
type ModelConfig struct {
	Model            string  `yaml:"model"`
	Temperature      float32 `yaml:"temperature"`
	TopP             float32 `yaml:"top_p"`
	FrequencyPenalty float32 `yaml:"frequency_penalty"`
	PresencePenalty  float32 `yaml:"presence_penalty"`
	MaxTokens        int     `yaml:"max_tokens"`
}

// GenerationConfig holds generative model settings.
type GenerationConfig struct {
	Provider ProviderConfig `yaml:"provider"`
	Persona  string         `yaml:"persona"`
	// Template overrides the grounded prompt; see answer.DefaultGroundedTemplate.
	Template           string      `yaml:"template"`
	ContextTokenBudget int         `yaml:"context_token_budget"`
	Encoding           string      `yaml:"encoding"` // tiktoken encoding name
	Generic            ModelConfig `yaml:"generic"`
	Grounded           ModelConfig `yaml:"grounded"`
}

// RetrievalConfig holds vector index and decision gate settings.
type RetrievalConfig struct {
	IndexName      string   `yaml:"index_name"`
	KeyPrefix      string   `yaml:"key_prefix"`
	VectorField    string   `yaml:"vector_field"`
	ContentField   string   `yaml:"content_field"`
	MetadataFields []string `yaml:"metadata_fields"`
	// NumericFields are metadata fields returned as numbers; others stay strings.
	NumericFields []string `yaml:"numeric_fields"`
	// Threshold is the similarity a result must exceed to ground the answer.
	// Unset selects DefaultThreshold; an explicit 0 is honored.
	Threshold *float64 `yaml:"threshold"`
	GateK     int     `yaml:"gate_k"`
	ContextK  int     `yaml:"context_k"`
	// FilterContext applies the facet predicate to the context search (default true).
	FilterContext *bool `yaml:"filter_context"`
}

// FacetCategory is one configured facet with its allowed values.
type FacetCategory struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// FacetsConfig holds the facet vocabulary.
type FacetsConfig struct {
	MatchAll   string          `yaml:"match_all"`
	Categories []FacetCategory `yaml:"categories"`
}

// Vocabulary converts the configured categories, in order.
func (f FacetsConfig) Vocabulary() facet.Vocabulary {
	v := make(facet.Vocabulary, len(f.Categories))
	for i, c := range f.Categories {
		v[i] = facet.Category{Name: c.Name, Values: c.Values}
	}
	return v
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory is loaded first when present.
func Load(env string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// Defaults.
const (
	DefaultThreshold          = 0.87
	DefaultGateK              = 3
	DefaultContextK           = 10
	DefaultContextTokenBudget = 3000
	DefaultMatchAll           = "ALL"
	DefaultIndexName          = "idx:docs"
	DefaultEncoding           = "cl100k_base"
)

// DefaultFacetCategories are the categories used when none are configured.
var DefaultFacetCategories = []string{"Interest", "Region", "SubRegion"}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Embedding.Provider.Name == "" {
		c.Embedding.Provider.Name = "openai"
	}
	if c.Embedding.Cache.TTLSec <= 0 {
		c.Embedding.Cache.TTLSec = 24 * 60 * 60
	}
	if c.Embedding.Cache.KeyPrefix == "" {
		c.Embedding.Cache.KeyPrefix = "ragstream:emb_cache:"
	}

	if c.Generation.Provider.Name == "" {
		c.Generation.Provider.Name = c.Embedding.Provider.Name
	}
	// One set of credentials is enough when both models share an endpoint.
	if c.Generation.Provider.APIKey == "" {
		c.Generation.Provider.APIKey = c.Embedding.Provider.APIKey
	}
	if c.Generation.Provider.BaseURL == "" {
		c.Generation.Provider.BaseURL = c.Embedding.Provider.BaseURL
	}
	if c.Generation.ContextTokenBudget <= 0 {
		c.Generation.ContextTokenBudget = DefaultContextTokenBudget
	}
	if c.Generation.Encoding == "" {
		c.Generation.Encoding = DefaultEncoding
	}
	if c.Generation.Grounded.Model == "" {
		c.Generation.Grounded.Model = c.Generation.Generic.Model
	}
	for _, m := range []*ModelConfig{&c.Generation.Generic, &c.Generation.Grounded} {
		if m.TopP <= 0 {
			m.TopP = 1
		}
	}

	if c.Retrieval.IndexName == "" {
		c.Retrieval.IndexName = DefaultIndexName
	}
	if c.Retrieval.Threshold == nil {
		th := DefaultThreshold
		c.Retrieval.Threshold = &th
	}
	if c.Retrieval.NumericFields == nil {
		c.Retrieval.NumericFields = []string{"page"}
	}
	if c.Retrieval.GateK == 0 {
		c.Retrieval.GateK = DefaultGateK
	}
	if c.Retrieval.ContextK == 0 {
		c.Retrieval.ContextK = DefaultContextK
	}
	if c.Retrieval.FilterContext == nil {
		on := true
		c.Retrieval.FilterContext = &on
	}

	if c.Facets.MatchAll == "" {
		c.Facets.MatchAll = DefaultMatchAll
	}
	if len(c.Facets.Categories) == 0 {
		for _, name := range DefaultFacetCategories {
			c.Facets.Categories = append(c.Facets.Categories, FacetCategory{Name: name})
		}
	}
}

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("database.driver must be \"valkey\" or \"redis\", got %q", c.Database.Driver)
	}

	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if c.Generation.Generic.Model == "" {
		return fmt.Errorf("generation.generic.model is required")
	}
	for name, m := range map[string]ModelConfig{"generic": c.Generation.Generic, "grounded": c.Generation.Grounded} {
		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("generation.%s.temperature must be between 0 and 2, got %v", name, m.Temperature)
		}
		if m.TopP > 1 {
			return fmt.Errorf("generation.%s.top_p must be at most 1, got %v", name, m.TopP)
		}
		if m.MaxTokens < 0 {
			return fmt.Errorf("generation.%s.max_tokens must not be negative", name)
		}
	}

	if th := c.Retrieval.Threshold; th != nil && (*th < 0 || *th > 1) {
		return fmt.Errorf("retrieval.threshold must be between 0 and 1, got %v", *th)
	}
	if c.Retrieval.GateK <= 0 || c.Retrieval.ContextK <= 0 {
		return fmt.Errorf("retrieval.gate_k and retrieval.context_k must be positive, got %d and %d",
			c.Retrieval.GateK, c.Retrieval.ContextK)
	}

	seen := make(map[string]bool, len(c.Facets.Categories))
	for _, cat := range c.Facets.Categories {
		if !identRegex.MatchString(cat.Name) {
			return fmt.Errorf("facets.categories: %q is not a valid index field name", cat.Name)
		}
		if seen[cat.Name] {
			return fmt.Errorf("facets.categories: duplicate category %q", cat.Name)
		}
		seen[cat.Name] = true
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging rotation settings must not be negative")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
