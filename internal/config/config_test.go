package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

func clearServerEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvNodeEnv, EnvBSPort, EnvPort, EnvOpen, EnvNotify, EnvTunnel, EnvMinify, EnvToggleMode, "MAKE"} {
		unsetEnv(t, name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearServerEnv(t)

	cfg, err := Load(LoadOptions{EnvDir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Server)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, DefaultFiles, cfg.Files)
	assert.True(t, cfg.WatchOptions.IgnoreInitial)
	assert.False(t, cfg.Open)
	assert.False(t, cfg.Notify)
	assert.False(t, cfg.Tunnel)
	assert.False(t, cfg.Minify)
	assert.False(t, cfg.Dev)
	assert.Equal(t, ToggleModeValue, cfg.ToggleMode)
	assert.Equal(t, "make", cfg.Build.Command)
	assert.Equal(t, PolicyAggregate, cfg.Build.Policy)
	assert.Equal(t, DefaultSourcePatterns, cfg.SourcePatterns)
}

func TestLoad_PortPrecedence(t *testing.T) {
	clearServerEnv(t)
	dir := t.TempDir()

	t.Setenv(EnvPort, "4000")
	cfg, err := Load(LoadOptions{EnvDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)

	t.Setenv(EnvBSPort, "5000")
	cfg, err = Load(LoadOptions{EnvDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)

	// Empty BS_PORT falls through to PORT.
	t.Setenv(EnvBSPort, "")
	cfg, err = Load(LoadOptions{EnvDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)

	cfg, err = Load(LoadOptions{EnvDir: dir, Port: 8123})
	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.Port)
}

func TestLoad_InvalidPort(t *testing.T) {
	clearServerEnv(t)
	t.Setenv(EnvPort, "http")

	_, err := Load(LoadOptions{EnvDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestLoad_ToggleModes(t *testing.T) {
	clearServerEnv(t)
	dir := t.TempDir()
	t.Setenv(EnvOpen, "off")
	t.Setenv(EnvNotify, "1")

	cfg, err := Load(LoadOptions{EnvDir: dir})
	require.NoError(t, err)
	assert.False(t, cfg.Open)
	assert.True(t, cfg.Notify)

	t.Setenv(EnvToggleMode, "presence")
	cfg, err = Load(LoadOptions{EnvDir: dir})
	require.NoError(t, err)
	assert.Equal(t, ToggleModePresence, cfg.ToggleMode)
	assert.True(t, cfg.Open, "presence mode enables any present toggle")
	assert.False(t, cfg.Tunnel)

	cfg, err = Load(LoadOptions{EnvDir: dir, ToggleMode: "value"})
	require.NoError(t, err)
	assert.False(t, cfg.Open)
}

func TestLoad_DevFromNodeEnv(t *testing.T) {
	clearServerEnv(t)
	dir := t.TempDir()

	t.Setenv(EnvNodeEnv, "production")
	cfg, err := Load(LoadOptions{EnvDir: dir})
	require.NoError(t, err)
	assert.False(t, cfg.Dev)

	t.Setenv(EnvNodeEnv, "development")
	cfg, err = Load(LoadOptions{EnvDir: dir})
	require.NoError(t, err)
	assert.True(t, cfg.Dev)
}

func TestLoad_EnvFile(t *testing.T) {
	clearServerEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BS_PORT=3456\nNODE_ENV=development\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv(EnvBSPort)
		_ = os.Unsetenv(EnvNodeEnv)
	})

	cfg, err := Load(LoadOptions{EnvDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 3456, cfg.Port)
	assert.True(t, cfg.Dev)
}

func TestLoad_OverrideFile(t *testing.T) {
	clearServerEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "specserve.yaml")
	content := `
open: true
source_patterns:
  - "docs/*.bs"
build:
  command: gmake
  timeout: 30s
  policy: first-event
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(LoadOptions{EnvDir: dir, OverrideFile: path, Required: true})
	require.NoError(t, err)
	assert.True(t, cfg.Open)
	assert.Equal(t, []string{"docs/*.bs"}, cfg.SourcePatterns)
	assert.Equal(t, "gmake", cfg.Build.Command)
	assert.Equal(t, 30*time.Second, cfg.Build.Timeout)
	assert.Equal(t, PolicyFirstEvent, cfg.Build.Policy)
	assert.Equal(t, DefaultReloadPatterns, cfg.ReloadPatterns)

	// Environment beats the file for toggles.
	t.Setenv(EnvOpen, "0")
	cfg, err = Load(LoadOptions{EnvDir: dir, OverrideFile: path, Required: true})
	require.NoError(t, err)
	assert.False(t, cfg.Open)
}

func TestLoad_OverrideFileErrors(t *testing.T) {
	clearServerEnv(t)
	dir := t.TempDir()

	_, err := Load(LoadOptions{EnvDir: dir, OverrideFile: filepath.Join(dir, "missing.yaml")})
	require.NoError(t, err, "optional override file may be absent")

	_, err = Load(LoadOptions{EnvDir: dir, OverrideFile: filepath.Join(dir, "missing.yaml"), Required: true})
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("unknown_key: 1\n"), 0o600))
	_, err = Load(LoadOptions{EnvDir: dir, OverrideFile: bad})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	policy := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policy, []byte("build:\n  policy: eventually\n"), 0o600))
	_, err = Load(LoadOptions{EnvDir: dir, OverrideFile: policy})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestConfigClone_DoesNotShareSlices(t *testing.T) {
	cfg := Config{Files: []string{"**"}}
	clone := cfg.Clone()
	clone.Files[0] = "changed"
	assert.Equal(t, "**", cfg.Files[0])
}

func TestInit_WritesLoadableFile(t *testing.T) {
	clearServerEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "specserve.yaml")

	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(LoadOptions{EnvDir: dir, OverrideFile: path, Required: true})
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "make", cfg.Build.Command)
}
