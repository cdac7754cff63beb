// Package setup registers the MCP server with Claude Desktop and prepares its
// local knowledge base.
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ServerKey is the entry name used in the Claude Desktop mcpServers map.
const ServerKey = "oncology-therapy"

// Variables that point the registered server at its SQLite knowledge base.
const (
	sourceEnv     = "ONCO_THERAPY_KNOWLEDGE_BASE_SOURCE"
	sqlitePathEnv = "ONCO_THERAPY_KNOWLEDGE_BASE_SQLITE_PATH"
)

// ClaudeDesktopConfig represents the Claude Desktop configuration file structure.
type ClaudeDesktopConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
	// Other top level settings are preserved on rewrite.
	Extra map[string]json.RawMessage `json:"-"`
}

// MCPServerConfig represents a single MCP server configuration.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for registering the server.
type Options struct {
	BinaryPath string
	SQLitePath string
}

// ClaudeDesktopConfigPath returns the path to Claude Desktop's config file.
func ClaudeDesktopConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support", "Claude")
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			configDir = filepath.Join(xdg, "Claude")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config", "Claude")
		}
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		configDir = filepath.Join(appData, "Claude")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(configDir, "claude_desktop_config.json"), nil
}

// LoadClaudeDesktopConfig loads the Claude Desktop configuration. A missing
// file yields an empty configuration.
func LoadClaudeDesktopConfig(configPath string) (*ClaudeDesktopConfig, error) {
	config := &ClaudeDesktopConfig{
		MCPServers: make(map[string]MCPServerConfig),
		Extra:      make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &config.Extra); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := config.Extra["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &config.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(config.Extra, "mcpServers")
	}
	if config.MCPServers == nil {
		config.MCPServers = make(map[string]MCPServerConfig)
	}

	return config, nil
}

// SaveClaudeDesktopConfig writes the configuration, creating its directory.
func SaveClaudeDesktopConfig(configPath string, config *ClaudeDesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := make(map[string]any, len(config.Extra)+1)
	for k, v := range config.Extra {
		out[k] = v
	}
	out["mcpServers"] = config.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Register adds or replaces the server entry in the Claude Desktop config.
func Register(configPath string, opts Options) error {
	if opts.BinaryPath == "" {
		return fmt.Errorf("server binary path is required")
	}

	config, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		return err
	}

	entry := MCPServerConfig{Command: opts.BinaryPath}
	if opts.SQLitePath != "" {
		entry.Env = map[string]string{
			sourceEnv:     "sqlite",
			sqlitePathEnv: opts.SQLitePath,
		}
	}
	config.MCPServers[ServerKey] = entry

	return SaveClaudeDesktopConfig(configPath, config)
}

// Status represents the current setup status.
type Status struct {
	ConfigPath string
	Registered bool
	ServerPath string
	SQLitePath string
	Issues     []string
}

// GetStatus inspects the Claude Desktop registration and the files it points at.
func GetStatus(configPath string) (*Status, error) {
	status := &Status{ConfigPath: configPath}

	config, err := LoadClaudeDesktopConfig(configPath)
	if err != nil {
		return nil, err
	}

	entry, ok := config.MCPServers[ServerKey]
	if !ok {
		status.Issues = append(status.Issues, "server is not registered with Claude Desktop")
		return status, nil
	}

	status.Registered = true
	status.ServerPath = entry.Command
	if info, err := os.Stat(entry.Command); err != nil {
		status.Issues = append(status.Issues, fmt.Sprintf("server binary not found: %s", entry.Command))
	} else if info.Mode()&0111 == 0 {
		status.Issues = append(status.Issues, fmt.Sprintf("server binary is not executable: %s", entry.Command))
	}

	status.SQLitePath = entry.Env[sqlitePathEnv]
	if status.SQLitePath != "" {
		if _, err := os.Stat(status.SQLitePath); os.IsNotExist(err) {
			status.Issues = append(status.Issues, fmt.Sprintf("knowledge base not seeded yet: %s", status.SQLitePath))
		}
	}

	return status, nil
}
