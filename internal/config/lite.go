package config

import (
	"os"
	"path/filepath"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// DefaultDataDir is where the standalone profile keeps its SQLite database.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".oncology-therapy")
}

// StandaloneDefaults is the profile used by the stdio MCP server: no external
// services, and logs on stderr so stdout stays reserved for the protocol.
func StandaloneDefaults() Option {
	return WithDefaults(map[string]any{
		"knowledge_base.source":      domain.SourceEmbedded,
		"knowledge_base.sqlite_path": filepath.Join(DefaultDataDir(), "knowledge.db"),
		"logging.output":             "stderr",
		"logging.format":             "text",
		"rate_limit.enabled":         false,
	})
}
