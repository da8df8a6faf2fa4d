package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/specserve/internal/config"
	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/logfields"
	"git.home.luguber.info/inful/specserve/internal/watch"
)

// ConfigPath serves the effective configuration as JSON.
const ConfigPath = "/__specserve/config"

// Server serves the site root with the live-reload client injected.
type Server struct {
	cfg          config.Config
	hub          *Hub
	metrics      http.Handler
	files        *watch.Matcher
	logger       *slog.Logger
	errorAdapter *ferrors.HTTPErrorAdapter
	script       string

	httpServer *http.Server
	ln         net.Listener
}

// NewServer builds a server for cfg. metricsHandler may be nil.
func NewServer(cfg config.Config, hub *Hub, metricsHandler http.Handler) (*Server, error) {
	files, err := watch.NewMatcher(cfg.Files...)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()
	return &Server{
		cfg:          cfg.Clone(),
		hub:          hub,
		metrics:      metricsHandler,
		files:        files,
		logger:       logger,
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
		script:       Script(ScriptOptions{Notify: cfg.Notify, Minify: cfg.Minify}),
	}, nil
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/livereload", s.hub)
	mux.HandleFunc("/livereload.js", s.handleScript)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc(ConfigPath, s.handleConfig)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.Handle("/", s.static())
	return chain(s.logger, s.errorAdapter, mux)
}

func (s *Server) handleScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write([]byte(s.script)); err != nil {
		s.logger.Debug("failed to write livereload script", logfields.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "clients": s.hub.Clients()})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.cfg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// static serves files under the root. Paths matching an exclusion in
// cfg.Files are reported as missing.
func (s *Server) static() http.Handler {
	files := http.FileServer(http.Dir(s.cfg.Server))
	tag := scriptTag("/livereload.js")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rel := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if rel != "" && s.files.Excluded(rel) {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(rel, ".md") && (s.cfg.RenderMarkdown || r.URL.Query().Get("render") == "1") {
			s.serveMarkdown(w, r, rel, tag)
			return
		}
		inj := newInjector(w, tag)
		files.ServeHTTP(inj, r)
		inj.finalize()
	})
}

func (s *Server) serveMarkdown(w http.ResponseWriter, r *http.Request, rel, tag string) {
	src, err := os.ReadFile(filepath.Join(s.cfg.Server, filepath.FromSlash(rel)))
	if errors.Is(err, fs.ErrNotExist) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read markdown").
			WithContext("path", rel).
			Build())
		return
	}
	page, err := RenderMarkdown(rel, src)
	if err != nil {
		s.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(InjectScript(page, tag))
}

// Start binds the port and serves in the background. Port 0 picks a free
// port; URL reports the result.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Tunnel {
		s.logger.Warn("Tunnel requested but not supported; serving locally only")
	}
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServer, "bind http port").
			Fatal().
			WithContext("port", s.cfg.Port).
			Build()
	}
	s.ln = ln
	// No write timeout: SSE connections are long lived.
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", logfields.Error(err))
		}
	}()
	s.logger.Info("Serving", logfields.Path(s.cfg.Server), logfields.Port(s.Port()), slog.String("url", s.URL()))
	return nil
}

// Port returns the bound port, or the configured one before Start.
func (s *Server) Port() int {
	if s.ln != nil {
		if addr, ok := s.ln.Addr().(*net.TCPAddr); ok {
			return addr.Port
		}
	}
	return s.cfg.Port
}

// URL is the local address browsers should open.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d/", s.Port())
}

// Stop closes live-reload clients and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServer, "http shutdown").Build()
	}
	return nil
}
