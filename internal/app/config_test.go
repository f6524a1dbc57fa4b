package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_RequiresNotebookPath(t *testing.T) {
	t.Parallel()

	_, err := NewConfig(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NotebookPath")
}

func TestNewConfig_ValidatesEnums(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		cfg  Config
	}{
		{"bad format", Config{NotebookPath: "x", LogFormat: "xml"}},
		{"bad level", Config{NotebookPath: "x", LogLevel: "loud"}},
		{"negative timeout", Config{NotebookPath: "x", CellTimeout: -time.Second}},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewConfig(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewConfig_AcceptsValid(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(Config{
		NotebookPath: "notebook.hcl",
		LogFormat:    "json",
		LogLevel:     "debug",
		CellTimeout:  30 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "notebook.hcl", cfg.NotebookPath)
}

func TestApplyConfigFile_OverlaysOnlySetFields(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"log_level: debug\ncell_timeout: 45s\nhealthcheck_port: 8080\n",
	), 0644))

	cfg := Config{
		NotebookPath: "nb.hcl",
		LogFormat:    "json",
		LogLevel:     "info",
	}
	require.NoError(t, ApplyConfigFile(&cfg, path))

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.CellTimeout)
	assert.Equal(t, 8080, cfg.HealthcheckPort)
	// Untouched by the file.
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "nb.hcl", cfg.NotebookPath)
}

func TestApplyConfigFile_MissingFile(t *testing.T) {
	t.Parallel()

	cfg := Config{NotebookPath: "nb.hcl"}
	assert.Error(t, ApplyConfigFile(&cfg, "/nonexistent/config.yaml"))
}

func TestApplyConfigFile_MalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [unclosed"), 0644))

	cfg := Config{NotebookPath: "nb.hcl"}
	assert.Error(t, ApplyConfigFile(&cfg, path))
}
