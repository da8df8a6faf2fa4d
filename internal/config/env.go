package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// Environment variable names read by Load.
const (
	EnvNodeEnv    = "NODE_ENV"
	EnvBSPort     = "BS_PORT"
	EnvPort       = "PORT"
	EnvOpen       = "BS_OPEN"
	EnvNotify     = "BS_NOTIFY"
	EnvTunnel     = "BS_TUNNEL"
	EnvMinify     = "BS_MINIFY"
	EnvToggleMode = "SPECSERVE_TOGGLE_MODE"
)

// DefaultPort is used when neither BS_PORT nor PORT is set.
const DefaultPort = 3000

// envFiles are tried in order; godotenv.Load never overrides variables that
// are already present in the process environment.
var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads .env style files from dir. Missing files are skipped.
func LoadEnvFiles(dir string) error {
	for _, name := range envFiles {
		path := filepath.Join(dir, name)
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load env file").
				WithContext("path", path).
				Build()
		}
		slog.Debug("Loaded environment variables", "path", path)
	}
	return nil
}

// IsDevelopment reports whether NODE_ENV is exactly "development".
func IsDevelopment() bool {
	return os.Getenv(EnvNodeEnv) == "development"
}

// ResolvePort returns the first non-empty of BS_PORT and PORT, or DefaultPort.
func ResolvePort() (int, error) {
	port, ok, err := LookupPort()
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultPort, nil
	}
	return port, nil
}

// LookupPort parses the first non-empty of BS_PORT and PORT. ok is false
// when both are unset or empty.
func LookupPort() (port int, ok bool, err error) {
	for _, name := range []string{EnvBSPort, EnvPort} {
		raw := os.Getenv(name)
		if raw == "" {
			continue
		}
		port, err := strconv.Atoi(raw)
		if err != nil || port < 0 || port > 65535 {
			return 0, false, ferrors.ConfigError("invalid port").
				WithContext("variable", name).
				WithContext("value", raw).
				Build()
		}
		return port, true, nil
	}
	return 0, false, nil
}
