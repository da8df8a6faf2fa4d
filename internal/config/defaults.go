package config

import (
	"os"
	"time"
)

// Build settlement policies accepted in BuildConfig.Policy.
const (
	PolicyAggregate  = "aggregate"
	PolicyFirstEvent = "first-event"
)

// DefaultFiles is the served/watched file set: everything, minus binary,
// archive and log artifacts and the node_modules directory.
var DefaultFiles = []string{
	"**",
	"!*.{7z,com,class,db,dll,dmg,exe,gitignore,gz,iso,jar,o,log,so,sql,sqlite,tar,zip}",
	"!node_modules",
}

// DefaultReloadPatterns trigger an unconditional browser reload on change.
var DefaultReloadPatterns = []string{"archive/**", "charter/**", "spec/**", "*.html", "*.css", "*.js"}

// DefaultSourcePatterns are the build sources that trigger `make <output>`.
var DefaultSourcePatterns = []string{"spec/{latest,1.1}/index.bs"}

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

// ServerDefaultApplier handles the served root and file globs.
type ServerDefaultApplier struct{}

func (ServerDefaultApplier) Domain() string { return "server" }

func (ServerDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Server == "" {
		cfg.Server = "."
	}
	if len(cfg.Files) == 0 {
		cfg.Files = append([]string(nil), DefaultFiles...)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return nil
}

// WatchDefaultApplier handles watcher options and patterns.
type WatchDefaultApplier struct{}

func (WatchDefaultApplier) Domain() string { return "watch" }

func (WatchDefaultApplier) ApplyDefaults(cfg *Config) error {
	cfg.WatchOptions.IgnoreInitial = true
	cfg.WatchOptions.RespectGitignore = true
	if cfg.WatchOptions.Debounce <= 0 {
		cfg.WatchOptions.Debounce = 100 * time.Millisecond
	}
	if len(cfg.ReloadPatterns) == 0 {
		cfg.ReloadPatterns = append([]string(nil), DefaultReloadPatterns...)
	}
	if len(cfg.SourcePatterns) == 0 {
		cfg.SourcePatterns = append([]string(nil), DefaultSourcePatterns...)
	}
	if cfg.SourceExt == "" {
		cfg.SourceExt = ".bs"
	}
	if cfg.OutputExt == "" {
		cfg.OutputExt = ".html"
	}
	return nil
}

// BuildDefaultApplier handles build invocation defaults.
type BuildDefaultApplier struct{}

func (BuildDefaultApplier) Domain() string { return "build" }

func (BuildDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Build.Command == "" {
		cfg.Build.Command = "make"
		if v := os.Getenv("MAKE"); v != "" {
			cfg.Build.Command = v
		}
	}
	if cfg.Build.Timeout <= 0 {
		cfg.Build.Timeout = 2 * time.Minute
	}
	if cfg.Build.Policy == "" {
		cfg.Build.Policy = PolicyAggregate
	}
	if cfg.Build.StableWait <= 0 {
		cfg.Build.StableWait = 50 * time.Millisecond
	}
	cfg.Build.CancelSuperseded = true
	return nil
}
