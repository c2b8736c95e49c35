package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/confwatch/internal/api"
	"github.com/obsidianstack/confwatch/internal/auth"
	"github.com/obsidianstack/confwatch/internal/config"
	"github.com/obsidianstack/confwatch/internal/history"
	"github.com/obsidianstack/confwatch/internal/metrics"
	"github.com/obsidianstack/confwatch/internal/notify"
	"github.com/obsidianstack/confwatch/internal/watcher"
	"github.com/obsidianstack/confwatch/internal/ws"
)

const (
	maxInterval     = time.Hour
	hubInterval     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type options struct {
	file          string
	interval      time.Duration
	loadTimeout   time.Duration
	maxSize       int64
	verbose       bool
	logFormat     string
	httpAddr      string
	apiKeyEnv     string
	apiKeyHeader  string
	webhookURLEnv string
	webhookType   string
	historySize   int
	historyTTL    time.Duration
	dumpMetrics   bool
}

// parseFlags parses args (without the program name) and validates the result.
func parseFlags(args []string, output io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("confwatch", flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&o.file, "file", "", "path to the configuration file to watch (required)")
	fs.DurationVar(&o.interval, "interval", 2*time.Second, "poll interval, at most 1h")
	fs.DurationVar(&o.loadTimeout, "load-timeout", 0, "give up on a single load after this long; 0 disables")
	fs.Int64Var(&o.maxSize, "max-size", config.DefaultMaxSize, "largest config file accepted, in bytes")
	fs.BoolVar(&o.verbose, "verbose", false, "log unchanged reloads and debug detail")
	fs.StringVar(&o.logFormat, "log-format", "json", "log output format: json or text")
	fs.StringVar(&o.httpAddr, "http-addr", "", "serve the status API, /metrics and /ws/stream on this address; empty disables")
	fs.StringVar(&o.apiKeyEnv, "api-key-env", "", "environment variable holding the API key for /api/; empty disables auth")
	fs.StringVar(&o.apiKeyHeader, "api-key-header", auth.DefaultHeader, "request header carrying the API key")
	fs.StringVar(&o.webhookURLEnv, "webhook-url-env", "", "environment variable holding a webhook URL for reload notifications")
	fs.StringVar(&o.webhookType, "webhook-type", notify.TypeHTTP, "webhook payload: slack, teams or http")
	fs.IntVar(&o.historySize, "history-size", history.DefaultSize, "number of recent events kept for /api/v1/events")
	fs.DurationVar(&o.historyTTL, "history-ttl", time.Hour, "drop recorded events older than this; 0 keeps them until pushed out")
	fs.BoolVar(&o.dumpMetrics, "dump-metrics", false, "print final metrics to stderr on exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if err := o.validate(); err != nil {
		return options{}, err
	}
	return o, nil
}

func (o options) validate() error {
	switch {
	case o.file == "":
		return errors.New("-file is required")
	case o.interval <= 0:
		return fmt.Errorf("-interval must be positive, got %v", o.interval)
	case o.interval > maxInterval:
		return fmt.Errorf("-interval must be at most %v, got %v", maxInterval, o.interval)
	case o.loadTimeout < 0:
		return fmt.Errorf("-load-timeout must not be negative, got %v", o.loadTimeout)
	case o.maxSize <= 0:
		return fmt.Errorf("-max-size must be positive, got %d", o.maxSize)
	case o.logFormat != "json" && o.logFormat != "text":
		return fmt.Errorf("-log-format must be json or text, got %q", o.logFormat)
	case o.historySize <= 0:
		return fmt.Errorf("-history-size must be positive, got %d", o.historySize)
	case o.historyTTL < 0:
		return fmt.Errorf("-history-ttl must not be negative, got %v", o.historyTTL)
	}
	switch o.webhookType {
	case notify.TypeSlack, notify.TypeTeams, notify.TypeHTTP:
	default:
		return fmt.Errorf("-webhook-type must be slack, teams or http, got %q", o.webhookType)
	}
	return nil
}

func newLogger(o options, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if o.logFormat == "text" {
		return slog.New(slog.NewTextHandler(w, hopts))
	}
	return slog.New(slog.NewJSONHandler(w, hopts))
}

// logEvent reports each watch event on the default logger.
func logEvent(ev watcher.Event) {
	switch ev.Kind {
	case watcher.EventReloaded:
		slog.Info("config reloaded", "path", ev.Path, "config", ev.Config, "took", ev.Took)
		if ev.Config != nil {
			for name, on := range ev.Config.Features {
				slog.Debug("feature flag", "name", name, "enabled", on)
			}
		}
	case watcher.EventUnchanged:
		slog.Debug("file modified but content unchanged", "path", ev.Path)
	case watcher.EventReloadFailed:
		attrs := []any{"path", ev.Path, "error_kind", config.KindOf(ev.Err).String(), "reason", ev.Reason()}
		if ev.Config != nil {
			slog.Error("reload failed, keeping last valid configuration",
				append(attrs, "app", ev.Config.AppName, "version", ev.Config.Version)...)
		} else {
			slog.Error("reload failed, no valid configuration loaded yet", attrs...)
		}
	case watcher.EventProbeError:
		slog.Warn("cannot read modification time", "path", ev.Path, "err", ev.Err)
	}
}

// run wires the watcher to its sinks and blocks until ctx is cancelled or a
// component fails. Final metrics go to dump when -dump-metrics is set.
func run(ctx context.Context, o options, dump io.Writer) error {
	mc := metrics.New()
	hist := history.New(o.historySize, o.historyTTL)

	var w *watcher.Watcher
	status := api.StatusFunc(func() watcher.Status { return w.Status() })

	handlers := []watcher.Handler{logEvent, mc.Observe, hist.Put}

	var hub *ws.Hub
	if o.httpAddr != "" {
		hub = ws.New(status, hubInterval)
		handlers = append(handlers, hub.Publish)
	}

	var notifier *notify.Notifier
	if o.webhookURLEnv != "" {
		url := os.Getenv(o.webhookURLEnv)
		if url == "" {
			slog.Warn("webhook url env var is empty, notifications disabled", "env", o.webhookURLEnv)
		} else {
			n, err := notify.New(o.webhookType, url)
			if err != nil {
				return err
			}
			notifier = n
			handlers = append(handlers, notifier.Notify)
		}
	}

	w, err := watcher.New(o.file, watcher.Options{
		Interval:    o.interval,
		LoadTimeout: o.loadTimeout,
		Loader:      config.Loader{MaxSize: o.maxSize},
		OnEvent:     watcher.Fanout(handlers...),
	})
	if err != nil {
		return err
	}

	var lis net.Listener
	if o.httpAddr != "" {
		lis, err = net.Listen("tcp", o.httpAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", o.httpAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		w.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hist.Run(gctx)
		return nil
	})
	if notifier != nil {
		g.Go(func() error {
			notifier.Run(gctx)
			return nil
		})
	}

	if lis != nil {
		key := ""
		if o.apiKeyEnv != "" {
			key = os.Getenv(o.apiKeyEnv)
			if key == "" {
				slog.Warn("api key env var is empty, /api/ is unauthenticated", "env", o.apiKeyEnv)
			}
		}

		mux := http.NewServeMux()
		mux.Handle("/api/", auth.APIKey(o.apiKeyHeader, key)(api.New(status, hist, mc)))
		mux.Handle("/metrics", mc.Handler())
		mux.Handle("/ws/stream", hub)

		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			slog.Info("HTTP server listening", "addr", lis.Addr().String(), "auth", key != "")
			if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	err = g.Wait()

	if o.dumpMetrics {
		if derr := mc.WriteText(dump); derr != nil {
			slog.Warn("write metrics", "err", derr)
		}
	}
	return err
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "confwatch:", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(o, os.Stdout))
	slog.Info("confwatch starting",
		"file", o.file,
		"interval", o.interval,
		"load_timeout", o.loadTimeout,
		"http_addr", o.httpAddr,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o, os.Stderr); err != nil {
		slog.Error("confwatch stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("confwatch shutting down")
}
