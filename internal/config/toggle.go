package config

import (
	"os"
	"strings"
)

// falseValues are the exact (case-sensitive) strings a toggle treats as off.
var falseValues = map[string]struct{}{
	"":      {},
	"0":     {},
	"false": {},
	"off":   {},
}

// IsEnabled reports whether val is a truthy toggle string. Only "", "0",
// "false" and "off" are false; every other value is true.
func IsEnabled(val string) bool {
	_, off := falseValues[val]
	return !off
}

// GetEnvVar returns IsEnabled(name) when the variable name is present in the
// environment, and def otherwise.
//
// The variable's value is never consulted, so any present variable resolves
// to true. ToggleModePresence relies on this; Toggle is the value-based
// variant.
func GetEnvVar(name string, def bool) bool {
	if _, ok := os.LookupEnv(name); ok {
		return IsEnabled(name)
	}
	return def
}

// Toggle returns IsEnabled applied to the variable's value when present, and
// def otherwise.
func Toggle(name string, def bool) bool {
	if val, ok := os.LookupEnv(name); ok {
		return IsEnabled(val)
	}
	return def
}

// ToggleMode selects how the BS_* toggles are resolved.
type ToggleMode string

const (
	// ToggleModeValue reads the variable's value (default).
	ToggleModeValue ToggleMode = "value"
	// ToggleModePresence reproduces GetEnvVar: presence alone enables the toggle.
	ToggleModePresence ToggleMode = "presence"
)

// NormalizeToggleMode folds case and whitespace; unknown values return "".
func NormalizeToggleMode(raw string) ToggleMode {
	switch ToggleMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ToggleModeValue:
		return ToggleModeValue
	case ToggleModePresence:
		return ToggleModePresence
	default:
		return ""
	}
}

// Resolve reads a toggle using the selected mode.
func (m ToggleMode) Resolve(name string, def bool) bool {
	if m == ToggleModePresence {
		return GetEnvVar(name, def)
	}
	return Toggle(name, def)
}
