package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selimozcann/seasec/internal/anomaly"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSiteCommands(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()

	out, err := run(t, "site", "set", "HTTPS://Example.com", "--data-dir", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "https://example.com/")
	assert.FileExists(t, filepath.Join(dir, "site.yaml"))

	out, err = run(t, "site", "get", "--data-dir", dir, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "https://example.com/")
}

func TestTrainWithoutEvents(t *testing.T) {
	_, err := run(t, "train", "--data-dir", t.TempDir(), "--log-level", "error")
	require.Error(t, err)
	assert.True(t, errors.Is(err, anomaly.ErrEmptyTrainingSet))
}
