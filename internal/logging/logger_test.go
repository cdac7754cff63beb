package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		cfg        domain.LoggingConfig
		wantLevel  logrus.Level
		wantOutput *os.File
		wantJSON   bool
	}{
		{
			name:       "defaults",
			cfg:        domain.LoggingConfig{},
			wantLevel:  logrus.InfoLevel,
			wantOutput: os.Stdout,
			wantJSON:   true,
		},
		{
			name:       "debug text on stderr",
			cfg:        domain.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
			wantLevel:  logrus.DebugLevel,
			wantOutput: os.Stderr,
		},
		{
			name:       "unknown level falls back to info",
			cfg:        domain.LoggingConfig{Level: "verbose", Format: "json", Output: "STDOUT"},
			wantLevel:  logrus.InfoLevel,
			wantOutput: os.Stdout,
			wantJSON:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantLevel, logger.GetLevel())
			assert.Equal(t, tt.wantOutput, logger.Out)
			_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.wantJSON, isJSON)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	logger, err := New(domain.LoggingConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.WithField("cancer_type", "lung_cancer").Info("Knowledge base loaded")
	require.NoError(t, logger.Out.(*os.File).Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "Knowledge base loaded", entry["message"])
	assert.Equal(t, "lung_cancer", entry["cancer_type"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_UnwritablePath(t *testing.T) {
	_, err := New(domain.LoggingConfig{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}
