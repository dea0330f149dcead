package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/kikiluvv/clipsignal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Motion, cfg.Motion)

	_, err = execute(t, "config", "init", path)
	assert.Error(t, err, "existing file must not be overwritten")

	out, err := execute(t, "--config", path, "--db", "/tmp/other.db", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "path: /tmp/other.db")
	assert.Contains(t, out, "sample_frames: 30")
}

func TestCategorizeNeedsTarget(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "categorize")
	assert.ErrorContains(t, err, "--all")
}
