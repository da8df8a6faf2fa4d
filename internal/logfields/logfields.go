package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyTarget     = "target"
	KeyPath       = "path"
	KeyEvent      = "event"
	KeyPattern    = "pattern"
	KeyPort       = "port"
	KeyDurationMS = "duration_ms"
	KeyExitCode   = "exit_code"
	KeyClients    = "clients"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr { return slog.String(KeyBuildID, id) }
func Target(t string) slog.Attr   { return slog.String(KeyTarget, t) }
func Path(p string) slog.Attr     { return slog.String(KeyPath, p) }
func Event(op string) slog.Attr   { return slog.String(KeyEvent, op) }
func Pattern(p string) slog.Attr  { return slog.String(KeyPattern, p) }
func Port(p int) slog.Attr        { return slog.Int(KeyPort, p) }
func ExitCode(code int) slog.Attr { return slog.Int(KeyExitCode, code) }
func Clients(n int) slog.Attr     { return slog.Int(KeyClients, n) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
