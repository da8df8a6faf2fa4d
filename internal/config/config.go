package config

import (
	"os"
	"slices"
	"time"

	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

// WatchOptions mirrors the watcher options handed to the live-reload service.
type WatchOptions struct {
	IgnoreInitial    bool          `yaml:"ignore_initial" json:"ignoreInitial"`
	Debounce         time.Duration `yaml:"debounce" json:"debounce"`
	RespectGitignore bool          `yaml:"respect_gitignore" json:"respectGitignore"`
}

// BuildConfig controls how the external build command is invoked.
type BuildConfig struct {
	Command          string        `yaml:"command" json:"command"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	Policy           string        `yaml:"policy" json:"policy"`
	CancelSuperseded bool          `yaml:"cancel_superseded" json:"cancelSuperseded"`
	StableWait       time.Duration `yaml:"stable_wait" json:"stableWait"`
	Silent           bool          `yaml:"silent" json:"silent"`
}

// Config is the static dev server configuration. It is built once by Load
// and passed by value afterwards.
type Config struct {
	Server       string       `yaml:"server" json:"server"`
	Files        []string     `yaml:"files" json:"files"`
	WatchOptions WatchOptions `yaml:"watch_options" json:"watchOptions"`
	Port         int          `yaml:"port" json:"port"`
	Open         bool         `yaml:"open" json:"open"`
	Notify       bool         `yaml:"notify" json:"notify"`
	Tunnel       bool         `yaml:"tunnel" json:"tunnel"`
	Minify       bool         `yaml:"minify" json:"minify"`

	Dev            bool        `yaml:"dev" json:"dev"`
	ToggleMode     ToggleMode  `yaml:"toggle_mode" json:"toggleMode"`
	ReloadPatterns []string    `yaml:"reload_patterns" json:"reloadPatterns"`
	SourcePatterns []string    `yaml:"source_patterns" json:"sourcePatterns"`
	SourceExt      string      `yaml:"source_ext" json:"sourceExt"`
	OutputExt      string      `yaml:"output_ext" json:"outputExt"`
	RenderMarkdown bool        `yaml:"render_markdown" json:"renderMarkdown"`
	Build          BuildConfig `yaml:"build" json:"build"`
}

// Clone returns a deep copy so slices can't be shared between holders.
func (c Config) Clone() Config {
	c.Files = slices.Clone(c.Files)
	c.ReloadPatterns = slices.Clone(c.ReloadPatterns)
	c.SourcePatterns = slices.Clone(c.SourcePatterns)
	return c
}

// LoadOptions carries the inputs that are not read from the environment.
type LoadOptions struct {
	// OverrideFile is an optional YAML file; a missing file is an error only when Required is set.
	OverrideFile string
	Required     bool
	// EnvDir is where .env files are looked up; empty means the working directory.
	EnvDir string
	// ForceDev enables watching regardless of NODE_ENV.
	ForceDev bool
	// ToggleMode overrides SPECSERVE_TOGGLE_MODE when non-empty.
	ToggleMode string
	// Root overrides the server root when non-empty.
	Root string
	// Port overrides BS_PORT/PORT when positive.
	Port int
}

// Load resolves the configuration. Sources in increasing precedence:
// defaults, the YAML override file, .env files and the process environment,
// then explicit LoadOptions.
func Load(opts LoadOptions) (Config, error) {
	if err := LoadEnvFiles(opts.EnvDir); err != nil {
		return Config{}, err
	}

	cfg := Config{}
	if err := NewDefaultApplier().ApplyDefaults(&cfg); err != nil {
		return Config{}, err
	}
	if opts.OverrideFile != "" {
		if err := applyOverrideFile(&cfg, opts.OverrideFile, opts.Required); err != nil {
			return Config{}, err
		}
	}

	cfg.ToggleMode = resolveToggleMode(opts.ToggleMode, cfg.ToggleMode)

	port, ok, err := LookupPort()
	if err != nil {
		return Config{}, err
	}
	if ok {
		cfg.Port = port
	}
	if opts.Port > 0 {
		cfg.Port = opts.Port
	}

	// File values act as the defaults for the BS_* toggles.
	cfg.Open = cfg.ToggleMode.Resolve(EnvOpen, cfg.Open)
	cfg.Notify = cfg.ToggleMode.Resolve(EnvNotify, cfg.Notify)
	cfg.Tunnel = cfg.ToggleMode.Resolve(EnvTunnel, cfg.Tunnel)
	cfg.Minify = cfg.ToggleMode.Resolve(EnvMinify, cfg.Minify)
	cfg.Dev = cfg.Dev || opts.ForceDev || IsDevelopment()

	if opts.Root != "" {
		cfg.Server = opts.Root
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg.Clone(), nil
}

func resolveToggleMode(flag string, fromFile ToggleMode) ToggleMode {
	for _, raw := range []string{flag, os.Getenv(EnvToggleMode), string(fromFile)} {
		if mode := NormalizeToggleMode(raw); mode != "" {
			return mode
		}
	}
	return ToggleModeValue
}

// Validate checks invariants Load relies on.
func Validate(cfg Config) error {
	if cfg.Server == "" {
		return ferrors.ValidationError("server root is required").Build()
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return ferrors.ValidationError("port out of range").WithContext("port", cfg.Port).Build()
	}
	if cfg.Build.Command == "" {
		return ferrors.ValidationError("build command is required").Build()
	}
	if cfg.Build.Timeout <= 0 {
		return ferrors.ValidationError("build timeout must be > 0").Build()
	}
	if cfg.SourceExt == "" || cfg.OutputExt == "" {
		return ferrors.ValidationError("source and output extensions are required").Build()
	}
	switch cfg.Build.Policy {
	case PolicyAggregate, PolicyFirstEvent:
	default:
		return ferrors.ValidationError("unknown build policy").WithContext("policy", cfg.Build.Policy).Build()
	}
	return nil
}
