package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/specserve/internal/build"
	"git.home.luguber.info/inful/specserve/internal/config"
	"git.home.luguber.info/inful/specserve/internal/coordinator"
	"git.home.luguber.info/inful/specserve/internal/events"
	"git.home.luguber.info/inful/specserve/internal/history"
	"git.home.luguber.info/inful/specserve/internal/livereload"
	"git.home.luguber.info/inful/specserve/internal/logfields"
	"git.home.luguber.info/inful/specserve/internal/metrics"
	"git.home.luguber.info/inful/specserve/internal/notify"
	"git.home.luguber.info/inful/specserve/internal/watch"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Dev              bool          `help:"Watch and rebuild even when NODE_ENV is not development."`
	Root             string        `help:"Directory to serve (default: server root from config)."`
	Port             int           `help:"Port to listen on (overrides BS_PORT and PORT)."`
	ToggleMode       string        `name:"toggle-mode" enum:",value,presence" default:"" help:"How BS_* toggles are read: value or presence."`
	HistoryDB        string        `name:"history-db" help:"SQLite file to record build results in."`
	HistoryRetention time.Duration `name:"history-retention" default:"168h" help:"How long build records are kept."`
	NATSURL          string        `name:"nats-url" help:"Publish build results to this NATS server."`
	NATSSubject      string        `name:"nats-subject" default:"specserve.builds" help:"NATS subject for build results."`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	sigctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := root.loadOptions()
	opts.ForceDev = s.Dev
	opts.Root = s.Root
	opts.Port = s.Port
	opts.ToggleMode = s.ToggleMode
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}
	return RunServe(sigctx, cfg, ServeOptions{
		HistoryDB:        s.HistoryDB,
		HistoryRetention: s.HistoryRetention,
		NATSURL:          s.NATSURL,
		NATSSubject:      s.NATSSubject,
	})
}

// ServeOptions are the serve inputs that are not part of config.Config.
type ServeOptions struct {
	HistoryDB        string
	HistoryRetention time.Duration
	NATSURL          string
	NATSSubject      string
	// Ready, when set, is called with the base URL once the server listens.
	Ready func(url string)
}

// RunServe runs the server until ctx is canceled.
func RunServe(ctx context.Context, cfg config.Config, opts ServeOptions) error {
	reg := metrics.NewRegistry()
	rec := metrics.NewPrometheusRecorder(reg)
	bus := events.NewBus()
	defer bus.Close()

	hub := livereload.NewHub(rec)
	srv, err := livereload.NewServer(cfg, hub, metrics.HTTPHandler(reg))
	if err != nil {
		return err
	}

	invoker := build.NewInvoker(cfg.Build.Command, cfg.Server).WithRecorder(rec)
	builds := build.NewCoordinator(invoker, build.OptionsFromConfig(cfg.Build), cfg.Build.CancelSuperseded).WithRecorder(rec)
	watchSvc, err := watch.NewService(cfg.Server, cfg.Files, rec)
	if err != nil {
		return err
	}
	coord := coordinator.New(coordinator.OptionsFromConfig(cfg), coordinator.ServiceWatcher{Service: watchSvc}, builds, hub).WithBus(bus)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if opts.HistoryDB != "" {
		store, err := history.NewSQLiteStore(opts.HistoryDB)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		pruner, err := history.NewPruner(store, opts.HistoryRetention, time.Hour)
		if err != nil {
			return err
		}
		pruner.Start()
		defer func() { _ = pruner.Stop() }()
		g.Go(func() error { return history.Consume(gctx, bus, store) })
	}

	if opts.NATSURL != "" {
		pub, err := notify.NewNATSPublisher(opts.NATSURL, opts.NATSSubject)
		if err != nil {
			return abort(err)
		}
		defer func() { _ = pub.Close() }()
		g.Go(func() error { return pub.Consume(gctx, bus) })
	}

	if err := srv.Start(gctx); err != nil {
		return abort(err)
	}
	if err := coord.Start(gctx); err != nil {
		stopServer(srv)
		return abort(err)
	}
	slog.Info("specserve ready",
		logfields.Port(srv.Port()),
		slog.Bool("dev", cfg.Dev),
		slog.String("state", coord.State().String()))

	if cfg.Open {
		if err := livereload.OpenBrowser(gctx, srv.URL()); err != nil {
			slog.Warn("Could not open browser", logfields.Error(err))
		}
	}
	if opts.Ready != nil {
		opts.Ready(srv.URL())
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down...")
		if err := coord.Stop(); err != nil {
			slog.Warn("Watcher shutdown error", logfields.Error(err))
		}
		builds.Wait()
		stopServer(srv)
		bus.Close()
		return nil
	})
	return g.Wait()
}

func stopServer(srv *livereload.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", logfields.Error(err))
	}
}
