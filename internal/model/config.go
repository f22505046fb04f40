package model

import "time"

// Config is the complete service configuration.
// Values come from defaults, then the config file, then TEXTIO_* env vars, then flags.
type Config struct {
	Server       ServerConfig      `yaml:"server" mapstructure:"server"`
	LLM          LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Store        StoreConfig       `yaml:"store" mapstructure:"store"`
	Cache        CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig   `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Rules        RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Grammar      GrammarConfig     `yaml:"grammar" mapstructure:"grammar"`
	Auth         AuthConfig        `yaml:"auth" mapstructure:"auth"`
	Log          LogConfig         `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	MaxConnections  int           `yaml:"max_connections" mapstructure:"max_connections"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     string        `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LLMConfig configures the generative model provider
type LLMConfig struct {
	Provider     string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model        string        `yaml:"model" mapstructure:"model"`
	APIKey       string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL      string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout      int           `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens    int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature  float64       `yaml:"temperature" mapstructure:"temperature"`
	Retries      int           `yaml:"retries" mapstructure:"retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// StoreConfig configures the durable warehouse
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// CacheConfig configures the correlation and ruleset caches
type CacheConfig struct {
	CorrelationTTL  time.Duration `yaml:"correlation_ttl" mapstructure:"correlation_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	RulesTTL        time.Duration `yaml:"rules_ttl" mapstructure:"rules_ttl"`
	RulesSize       int           `yaml:"rules_size" mapstructure:"rules_size"`
	RedisAddr       string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"` // Empty disables the shared layer
	RedisPassword   string        `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB         int           `yaml:"redis_db" mapstructure:"redis_db"`
}

// ConcurrencyConfig configures worker counts
type ConcurrencyConfig struct {
	PersistWorkers int    `yaml:"persist_workers" mapstructure:"persist_workers"`
	PersistQueue   int    `yaml:"persist_queue" mapstructure:"persist_queue"`
	SpoolDir       string `yaml:"spool_dir,omitempty" mapstructure:"spool_dir"` // Empty disables crash recovery
	BatchWorkers   int    `yaml:"batch_workers" mapstructure:"batch_workers"`
}

// RateLimitConfig configures token buckets
type RateLimitConfig struct {
	ModelRequestsPerSecond   float64 `yaml:"model_requests_per_second" mapstructure:"model_requests_per_second"`
	ModelBurst               int     `yaml:"model_burst" mapstructure:"model_burst"`
	ScoringRequestsPerSecond float64 `yaml:"scoring_requests_per_second" mapstructure:"scoring_requests_per_second"`
	ScoringBurst             int     `yaml:"scoring_burst" mapstructure:"scoring_burst"`
}

// RulesConfig selects where rulesets come from
type RulesConfig struct {
	File      string `yaml:"file,omitempty" mapstructure:"file"` // Empty uses the embedded defaults
	FromStore bool   `yaml:"from_store" mapstructure:"from_store"`
	Default   string `yaml:"default" mapstructure:"default"`
}

// GrammarConfig points at a LanguageTool server
type GrammarConfig struct {
	BaseURL  string        `yaml:"base_url" mapstructure:"base_url"`
	Language string        `yaml:"language" mapstructure:"language"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AuthConfig holds API keys accepted by the scoring endpoint
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys,omitempty" mapstructure:"api_keys"`
}

// LogConfig configures zap
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8055",
			MaxConnections:  256,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     "*",
		},
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			Timeout:      60,
			MaxTokens:    1500,
			Temperature:  0.1,
			Retries:      1,
			RetryBackoff: 2 * time.Second,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "textio.db",
		},
		Cache: CacheConfig{
			CorrelationTTL:  6 * time.Hour,
			CleanupInterval: 10 * time.Minute,
			RulesTTL:        5 * time.Minute,
			RulesSize:       64,
		},
		Concurrency: ConcurrencyConfig{
			PersistWorkers: 4,
			PersistQueue:   256,
			BatchWorkers:   4,
		},
		RateLimiting: RateLimitConfig{
			ModelRequestsPerSecond:   5,
			ModelBurst:               10,
			ScoringRequestsPerSecond: 1,
			ScoringBurst:             5,
		},
		Rules: RulesConfig{
			Default: "problem_statement",
		},
		Grammar: GrammarConfig{
			BaseURL:  "http://localhost:8081",
			Language: "en-US",
			Timeout:  10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
