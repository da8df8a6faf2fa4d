package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/specserve/internal/config"
	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

const fakeMake = `#!/bin/sh
case "$1" in
  spec/latest/index.html) echo "built $1" ;;
  *) echo "no rule to make target $1" >&2; exit 2 ;;
esac
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	require.NoError(t, config.NewDefaultApplier().ApplyDefaults(&cfg))
	cfg.Server = t.TempDir()
	cfg.Port = 0
	cfg.Build.Silent = true
	return cfg
}

func withFakeMake(t *testing.T, cfg *config.Config) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake make script needs /bin/sh")
	}
	script := filepath.Join(t.TempDir(), "fake-make")
	require.NoError(t, os.WriteFile(script, []byte(fakeMake), 0o755))
	cfg.Build.Command = script
}

func TestRunBuild_Success(t *testing.T) {
	cfg := testConfig(t)
	withFakeMake(t, &cfg)

	var out bytes.Buffer
	err := RunBuild(t.Context(), &out, cfg, &BuildCmd{Target: "spec/latest/index.html", Silent: true})
	require.NoError(t, err)
	require.Contains(t, out.String(), "Built spec/latest/index.html")
}

func TestRunBuild_FailureIsBuildError(t *testing.T) {
	cfg := testConfig(t)
	withFakeMake(t, &cfg)

	var out bytes.Buffer
	err := RunBuild(t.Context(), &out, cfg, &BuildCmd{Target: "missing", Policy: config.PolicyFirstEvent})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))
	require.Empty(t, out.String())
}

func TestWriteConfig(t *testing.T) {
	cfg := testConfig(t)

	var yamlOut bytes.Buffer
	require.NoError(t, WriteConfig(&yamlOut, cfg, false))
	require.Contains(t, yamlOut.String(), "server: "+cfg.Server)

	var jsonOut bytes.Buffer
	require.NoError(t, WriteConfig(&jsonOut, cfg, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))
	require.Equal(t, cfg.Server, decoded["server"])
}

func TestRunInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.DefaultOverrideFile)
	var out bytes.Buffer
	require.NoError(t, RunInit(&out, path, false))
	require.Contains(t, out.String(), "initialized successfully")

	err := RunInit(&out, path, false)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
	require.NoError(t, RunInit(&out, path, true))
}

func TestLoadOptions_DefaultOverrideFileIsOptional(t *testing.T) {
	opts := (&CLI{}).loadOptions()
	require.Equal(t, config.DefaultOverrideFile, opts.OverrideFile)
	require.False(t, opts.Required)

	opts = (&CLI{Config: "custom.yaml"}).loadOptions()
	require.Equal(t, "custom.yaml", opts.OverrideFile)
	require.True(t, opts.Required)
}

func TestPrintVersion(t *testing.T) {
	var out bytes.Buffer
	printVersion(&out)
	require.Contains(t, out.String(), "specserve ")
	require.Contains(t, out.String(), runtime.Version())
}

func TestRunServe_ServesUntilCanceled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dev = true
	withFakeMake(t, &cfg)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Server, "index.html"), []byte("<html><body>hi</body></html>"), 0o600))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- RunServe(ctx, cfg, ServeOptions{
			HistoryDB:        filepath.Join(t.TempDir(), "history.db"),
			HistoryRetention: time.Hour,
			Ready:            func(url string) { ready <- url },
		})
	}()

	var base string
	select {
	case base = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"healthz", http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}
