package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// DefaultOverrideFile is read by `serve` when present.
const DefaultOverrideFile = "specserve.yaml"

// applyOverrideFile merges a YAML file onto cfg. Only keys present in the
// file change cfg. Environment references (${VAR}) are expanded first.
func applyOverrideFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read override file").
			WithContext("path", path).
			Fatal().
			Build()
	}

	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid override file").
			WithContext("path", path).
			Fatal().
			Build()
	}
	if cfg.ToggleMode != "" {
		mode := NormalizeToggleMode(string(cfg.ToggleMode))
		if mode == "" {
			return ferrors.ConfigError("unknown toggle_mode").
				WithContext("path", path).
				WithContext("value", string(cfg.ToggleMode)).
				Build()
		}
		cfg.ToggleMode = mode
	}
	return nil
}

// Marshal renders the configuration as YAML.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode config").Build()
	}
	if err := enc.Close(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode config").Build()
	}
	return buf.Bytes(), nil
}

// Init writes an example override file populated with the defaults.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("override file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}
	cfg := Config{}
	if err := NewDefaultApplier().ApplyDefaults(&cfg); err != nil {
		return err
	}
	cfg.ToggleMode = ToggleModeValue
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write override file").
			WithContext("path", path).
			Build()
	}
	return nil
}
