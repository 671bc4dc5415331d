package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/genhat/genhat-core/pkg/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "models", "resolve", "speak"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestResolve_UnknownBackend(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	rootCmd.SetArgs([]string{"resolve", "image-generation",
		"--diagnostic-log", filepath.Join(home, "diag.log"),
		"--log-format", "text"})
	err := rootCmd.Execute()
	assert.True(t, launcher.IsErrorCode(err, launcher.ErrorCodeInvalidDescriptor), "got %v", err)
}

func TestModels_YAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	modelsDir := filepath.Join(home, "models")
	require.NoError(t, os.MkdirAll(modelsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "custom.gguf"), []byte("x"), 0o644))

	rootCmd.SetArgs([]string{"models", "-o", "yaml",
		"--models-dir", modelsDir,
		"--diagnostic-log", filepath.Join(home, "diag.log")})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, modelsDir, cfg.Models.Dir)
}

func TestSpeak_RequiresText(t *testing.T) {
	rootCmd.SetArgs([]string{"speak"})
	assert.Error(t, rootCmd.Execute())
}
