// Package testutil provides shared helpers for integration-style tests:
// a thread-safe log buffer and a harness that runs a whole notebook from
// files in a temporary directory.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/cellgridgo/internal/app"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of a notebook test run.
type HarnessResult struct {
	Output string
	Err    error
	App    *app.App
}

// RunNotebookTest writes the given notebook files into a temporary directory
// and runs them end to end through the app. Keys are relative paths, so a
// test can spread cells across several files and subdirectories.
func RunNotebookTest(t *testing.T, files map[string]string) *HarnessResult {
	t.Helper()
	return RunNotebookTestWithContext(context.Background(), t, files)
}

// RunNotebookTestWithContext is RunNotebookTest with a caller-supplied
// context, for cancellation and deadline tests.
func RunNotebookTestWithContext(ctx context.Context, t *testing.T, files map[string]string) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	cfg, err := app.NewConfig(app.Config{
		NotebookPath: tmpDir,
		LogLevel:     "debug",
		LogFormat:    "text",
	})
	require.NoError(t, err)

	output := &SafeBuffer{}
	testApp, err := app.NewApp(output, cfg)
	if err != nil {
		return &HarnessResult{Output: output.String(), Err: err}
	}

	runErr := testApp.Run(ctx)
	return &HarnessResult{
		Output: output.String(),
		Err:    runErr,
		App:    testApp,
	}
}
