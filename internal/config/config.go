package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. ONCO_THERAPY_SERVER_PORT.
const EnvPrefix = "ONCO_THERAPY"

// envFileVar names the variable that points at an alternative .env file.
const envFileVar = EnvPrefix + "_ENV_FILE"

// Conventional provider variables read when the prefixed ones are unset.
var providerEnvFallbacks = map[string][]string{
	"llm.api_key":     {"AZURE_OPENAI_API_KEY", "GEMINI_API_KEY"},
	"llm.endpoint":    {"AZURE_OPENAI_ENDPOINT"},
	"llm.deployment":  {"AZURE_OPENAI_DEPLOYMENT"},
	"llm.api_version": {"AZURE_OPENAI_API_VERSION"},
}

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	opts   []Option
	config *domain.Config
}

// Option adjusts how the Manager loads configuration.
type Option func(*viper.Viper)

// WithDefaults overrides built-in defaults before files and env are read.
func WithDefaults(values map[string]any) Option {
	return func(v *viper.Viper) {
		for k, val := range values {
			v.SetDefault(k, val)
		}
	}
}

// WithConfigFile reads an explicit configuration file instead of searching.
func WithConfigFile(path string) Option {
	return func(v *viper.Viper) {
		v.SetConfigFile(path)
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{opts: opts}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	if err := loadEnvFile(); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/oncology-therapy/")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for _, opt := range m.opts {
		opt(v)
	}

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	applyProviderFallbacks(v, config)

	m.config = config
	return nil
}

// loadEnvFile loads .env (or the file named by ONCO_THERAPY_ENV_FILE) without
// overriding variables that are already set. A missing file is fine.
func loadEnvFile() error {
	path := os.Getenv(envFileVar)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

func applyProviderFallbacks(v *viper.Viper, config *domain.Config) {
	targets := map[string]*string{
		"llm.api_key":     &config.LLM.APIKey,
		"llm.endpoint":    &config.LLM.Endpoint,
		"llm.deployment":  &config.LLM.Deployment,
		"llm.api_version": &config.LLM.APIVersion,
	}

	keySource := ""
	for key, target := range targets {
		if isExplicit(v, key) {
			continue
		}
		for _, name := range providerEnvFallbacks[key] {
			if val := os.Getenv(name); val != "" {
				*target = val
				if key == "llm.api_key" {
					keySource = name
				}
				break
			}
		}
	}

	// A bare GEMINI_API_KEY selects Gemini unless a provider was chosen.
	if keySource == "GEMINI_API_KEY" && !isExplicit(v, "llm.provider") {
		config.LLM.Provider = domain.ProviderGemini
	}
	// The Azure deployment default means nothing to Gemini; let the client pick its model.
	if config.LLM.Provider == domain.ProviderGemini && !isExplicit(v, "llm.deployment") {
		config.LLM.Deployment = ""
	}
}

// isExplicit reports whether a key was set by the config file or a prefixed variable.
func isExplicit(v *viper.Viper, key string) bool {
	env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	return v.InConfig(key) || os.Getenv(env) != ""
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "75s")
	v.SetDefault("server.mode", "release")

	// Knowledge base defaults
	v.SetDefault("knowledge_base.source", domain.SourceEmbedded)
	v.SetDefault("knowledge_base.directory", "")
	v.SetDefault("knowledge_base.sqlite_path", "oncology-therapy.db")
	v.SetDefault("knowledge_base.cache_size", 16)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "oncology_therapy")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_auto", true)

	// LLM defaults
	v.SetDefault("llm.provider", domain.ProviderAzureOpenAI)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_version", "2023-09-15-preview")
	v.SetDefault("llm.deployment", "gpt-4o")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.rate_limit", 2.0)
	v.SetDefault("llm.retry_count", 2)
	v.SetDefault("llm.breaker_ratio", 0.6)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "oncology-therapy-recommender")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetLLMConfig returns narrative model configuration
func (m *Manager) GetLLMConfig() *domain.LLMConfig {
	return &m.config.LLM
}

// GetKnowledgeBaseConfig returns knowledge base source configuration
func (m *Manager) GetKnowledgeBaseConfig() *domain.KnowledgeBaseConfig {
	return &m.config.KnowledgeBase
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks ranges and enumerations of a configuration.
func Validate(config *domain.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.KnowledgeBase.Source {
	case domain.SourceEmbedded:
	case domain.SourceDirectory:
		if config.KnowledgeBase.Directory == "" {
			return fmt.Errorf("knowledge base directory is required for source %q", config.KnowledgeBase.Source)
		}
	case domain.SourceSQLite:
		if config.KnowledgeBase.SQLitePath == "" {
			return fmt.Errorf("knowledge base sqlite_path is required for source %q", config.KnowledgeBase.Source)
		}
	case domain.SourcePostgres:
		if config.Database.Host == "" || config.Database.Database == "" || config.Database.Username == "" {
			return fmt.Errorf("database host, name and username are required for source %q", config.KnowledgeBase.Source)
		}
	default:
		return fmt.Errorf("invalid knowledge base source: %q", config.KnowledgeBase.Source)
	}

	llm := config.LLM
	if llm.Provider != domain.ProviderAzureOpenAI && llm.Provider != domain.ProviderGemini {
		return fmt.Errorf("invalid llm provider: %q", llm.Provider)
	}
	if llm.MaxTokens <= 0 {
		return fmt.Errorf("llm max_tokens must be positive, got %d", llm.MaxTokens)
	}
	if llm.Temperature < 0 || llm.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2, got %g", llm.Temperature)
	}
	if llm.Timeout <= 0 {
		return fmt.Errorf("llm timeout must be positive")
	}
	if llm.Configured() && llm.Provider == domain.ProviderAzureOpenAI && llm.Endpoint == "" {
		return fmt.Errorf("llm endpoint is required when an Azure OpenAI key is set")
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_second and burst")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
