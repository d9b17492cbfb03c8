// Package main implements the seer daemon: it restores its knowledge, reports
// readiness to the sidecar, answers queries over REST and reacts to signals
// until SIGTERM runs the shutdown sequence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
	rootpkg "tools.zach/dev/seer"
	"tools.zach/dev/seer/internal/config"
	"tools.zach/dev/seer/internal/logger"
	"tools.zach/dev/seer/internal/memory"
	"tools.zach/dev/seer/internal/metrics"
	"tools.zach/dev/seer/internal/notify"
	"tools.zach/dev/seer/internal/rest"
	"tools.zach/dev/seer/internal/seer"
	"tools.zach/dev/seer/internal/wisdom"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time with -ldflags "-X main.version=0.1.0".
// Without ldflags, resolveVersion falls back to the VCS info Go embeds.
var version = "dev"

// resolveVersion returns [version] when set via ldflags, otherwise a
// "dev+<hash>" tag built from the embedded VCS revision.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Flags
// ///////////////////////////////////////////////

// overrides holds command-line values that replace config file values.
// Zero values leave the file value alone.
type overrides struct {
	restPort     int
	socketFile   string
	memoriesFile string
	messagesFile string
	logLevel     string
}

// apply copies the set overrides into cfg.
func (o overrides) apply(cfg *config.Config) {
	if o.restPort != 0 {
		cfg.REST.Port = o.restPort
	}
	if o.socketFile != "" {
		cfg.Notify.SocketFile = o.socketFile
	}
	if o.memoriesFile != "" {
		cfg.Memory.File = o.memoriesFile
	}
	if o.messagesFile != "" {
		cfg.Injection.MessagesFile = o.messagesFile
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
}

// loadConfig reads the config file and applies the overrides on top.
func loadConfig(path string, o overrides) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is the whole daemon. Its result is the process exit code: 0 only when
// the REST listener reported a clean shutdown.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o overrides
	configPath := fs.String("config", "", "Path to config.toml (defaults apply when empty or missing)")
	fs.IntVar(&o.restPort, "rest-port", 0, "REST listen port")
	fs.StringVar(&o.socketFile, "socket-file", "", "Sidecar notification socket")
	fs.StringVar(&o.memoriesFile, "memories-file", "", "Persisted knowledge file")
	fs.StringVar(&o.messagesFile, "messages-file", "", "Injected message batch file")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	printConfig := fs.Bool("print-config", false, "Print the default config and exit")
	showVersion := fs.Bool("version", false, "Print the version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *printConfig {
		if _, err := stdout.Write(rootpkg.DefaultConfigTOML); err != nil {
			return 1
		}
		return 0
	}
	ver := resolveVersion()
	if *showVersion {
		fmt.Fprintln(stdout, ver)
		return 0
	}

	cfg, err := loadConfig(*configPath, o)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: load config: %v\n", err)
		return 1
	}

	level := logger.LevelFromEnv(logger.ParseLevel(cfg.Log.Level))
	log, logCloser := logger.NewLogger(logger.Options{
		Level:     level,
		Stdout:    stdout,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	})
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("seer starting", "version", ver, "pid", os.Getpid(), "rest", cfg.REST.Addr())

	if err := os.MkdirAll(filepath.Dir(cfg.Memory.File), 0o755); err != nil {
		slog.Error("cannot create memories directory", "error", err)
		return 1
	}
	lock, err := acquireLock(cfg.Memory.File)
	if err != nil {
		slog.Error("another seer owns these memories", "error", err)
		return 1
	}
	defer lock.release()

	// Registered before the seer exists so early signals queue instead of
	// taking their default action.
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, seer.Signals()...)
	defer signal.Stop(sigCh)

	return serve(cfg, sigCh)
}

// serve builds the seer and its REST server, runs them until the REST
// listener stops and derives the exit code from its shutdown result.
func serve(cfg *config.Config, sigCh <-chan os.Signal) int {
	notifier := notify.New(notify.Options{
		SocketPath:     cfg.Notify.SocketFile,
		Network:        cfg.Notify.Network,
		MessagesPath:   cfg.Injection.MessagesFile,
		ConnectTimeout: cfg.Notify.ConnectTimeout(),
		PollInterval:   cfg.Notify.PollInterval(),
	})

	sr := seer.New(seer.Options{
		Notifier:  notifier,
		Knowledge: wisdom.New(cfg.Knowledge.Sources...),
		Memory:    memory.NewFileStore(cfg.Memory.File),
		PID:       os.Getpid(),
	})

	results := make(chan error, 1)
	srv := rest.New(cfg.REST.Addr(), sr, results)
	srv.SetShutdownTimeout(time.Duration(cfg.REST.ShutdownTimeoutSeconds) * time.Second)
	sr.RegisterShutdownHook(srv.Shutdown)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sr.Run(gctx, sigCh)
	})
	g.Go(func() error {
		defer cancel()
		return srv.ListenAndServe()
	})
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("worker failed", "error", err)
	}
	return exitCode(results)
}

// exitCode reads the single shutdown result. An empty channel means the
// listener stopped without a shutdown and counts as failure.
func exitCode(results <-chan error) int {
	select {
	case err := <-results:
		if err != nil {
			slog.Error("shutdown failed", "error", err)
			return 1
		}
		slog.Info("seer stopped")
		return 0
	default:
		slog.Error("no shutdown result reported")
		return 1
	}
}

// serveMetrics exposes /metrics on addr until ctx is done. A listener that
// cannot start is logged and the seer runs on without it.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics listener shutdown", "error", err)
		}
	}()

	slog.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics listener failed", "addr", addr, "error", err)
	}
	return nil
}
