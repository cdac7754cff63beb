package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	KnowledgeBase KnowledgeBaseConfig `mapstructure:"knowledge_base"`
	Database      DatabaseConfig      `mapstructure:"database"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	MCP           MCPConfig           `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Mode           string        `mapstructure:"mode"` // "debug", "release", "test"
}

// Knowledge base source types
const (
	SourceEmbedded  = "embedded"
	SourceDirectory = "directory"
	SourceSQLite    = "sqlite"
	SourcePostgres  = "postgres"
)

// KnowledgeBaseConfig selects where curated knowledge is read from.
type KnowledgeBaseConfig struct {
	Source     string `mapstructure:"source"`
	Directory  string `mapstructure:"directory"`
	SQLitePath string `mapstructure:"sqlite_path"`
	CacheSize  int    `mapstructure:"cache_size"`
}

// DatabaseConfig represents PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsAuto  bool          `mapstructure:"migrations_auto"`
}

// LLM providers
const (
	ProviderAzureOpenAI = "azure"
	ProviderGemini      = "gemini"
)

// LLMConfig configures the narrative model. An empty API key means the
// narrative layer is unconfigured, which is not an error.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	APIVersion   string        `mapstructure:"api_version"`
	Deployment   string        `mapstructure:"deployment"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second
	RetryCount   int           `mapstructure:"retry_count"`
	BreakerRatio float64       `mapstructure:"breaker_ratio"`
}

// Configured reports whether credentials are present.
func (c LLMConfig) Configured() bool {
	return c.APIKey != ""
}

// RateLimitConfig represents per-client HTTP rate limiting
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int64   `mapstructure:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
