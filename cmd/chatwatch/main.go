package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/you/poe-chatwatch/internal/config"
	"github.com/you/poe-chatwatch/internal/core"
	httpadmin "github.com/you/poe-chatwatch/internal/http"
	"github.com/you/poe-chatwatch/internal/httpapi"
	"github.com/you/poe-chatwatch/internal/metrics"
	"github.com/you/poe-chatwatch/internal/parser"
	"github.com/you/poe-chatwatch/internal/store"
	"github.com/you/poe-chatwatch/internal/tail"
	"github.com/you/poe-chatwatch/internal/version"
	"github.com/you/poe-chatwatch/internal/watch"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag bool
		configPath  string
		logFile     string
		maxLogs     int
		httpAddr    string
		printEvents bool
		printOnly   string
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&configPath, "config", "", "Path to TOML config file (overrides POECHAT_CONFIG)")
	flag.StringVar(&logFile, "file", "", "Path to the game's chat log (Client.txt)")
	flag.IntVar(&maxLogs, "max-logs", 100, "Events kept per category (0 = unbounded)")
	flag.StringVar(&httpAddr, "http-addr", "", "Ops listener address for status and metrics (e.g., 127.0.0.1:9190)")
	flag.BoolVar(&printEvents, "print", false, "Print every stored event to stdout")
	flag.StringVar(&printOnly, "categories", "", "Comma-separated categories to print with -print (default all)")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"chatwatch version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("chatwatch: config: %v", err)
	}
	if overrides["file"] {
		cfg.LogFile = strings.TrimSpace(logFile)
	}
	if overrides["max-logs"] {
		cfg.MaxLogs = maxLogs
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if cfg.LogFile == "" && flag.NArg() > 0 {
		cfg.LogFile = strings.TrimSpace(flag.Arg(0))
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("chatwatch: %v", err)
	}
	if cfg.LogFile == "" {
		log.Fatalf("chatwatch: no log file configured; pass -file or set POECHAT_LOG_FILE")
	}
	if cfg.PatternEnv == "EXTRACT_REGEX" {
		log.Printf("chatwatch: EXTRACT_REGEX is deprecated; use POECHAT_EXTRACT_REGEX")
	}

	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	log.Printf("%s", cfg.SummaryJSON())

	loc, _ := cfg.Location()
	p, err := parser.New(cfg.Pattern, parser.WithLocation(loc))
	if err != nil {
		log.Fatalf("chatwatch: %v", err)
	}

	m := metrics.New()
	out := newPrinter(os.Stdout)
	if err := out.only(printOnly); err != nil {
		log.Fatalf("chatwatch: -categories: %v", err)
	}

	storeOpts := []store.Option{store.WithMetrics(m)}
	if printEvents {
		storeOpts = append(storeOpts, store.WithListener(out.event))
	}
	st := store.New(cfg.MaxLogs, storeOpts...)
	reader := tail.New(cfg.LogFile, p, st, tail.WithMetrics(m))
	loop := watch.New(reader, watch.Options{
		Debounce:     cfg.Debounce(),
		PollInterval: cfg.PollInterval(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("chatwatch: received %s, shutting down", sig)
		cancel()
	}()

	if err := loop.Start(ctx); err != nil {
		if errors.Is(err, parser.ErrPatternContract) {
			log.Fatalf("chatwatch: extraction pattern does not match the log's timestamp format: %v", err)
		}
		log.Fatalf("chatwatch: start: %v", err)
	}
	log.Printf("chatwatch: watching %s (max_logs=%d)", loop.Path(), st.MaxLogs())

	if len(dumpSignals) > 0 {
		dumpCh := make(chan os.Signal, 1)
		signal.Notify(dumpCh, dumpSignals...)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-dumpCh:
					if err := out.dump(st); err != nil {
						log.Printf("chatwatch: dump: %v", err)
					}
				}
			}
		}()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-st.Changed():
				slog.Debug("chatwatch: store changed", "counts", st.Counts(), "cursor", reader.Offset())
			}
		}
	}()

	var api *httpapi.Server
	if cfg.HTTP.Addr != "" {
		build := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
		if version.BuildTime != "" && version.BuildTime != "unknown" {
			if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
				build.BuiltAt = t
			}
		}
		api = httpapi.New(st, reader, loop, httpapi.Options{
			Addr:            cfg.HTTP.Addr,
			RateLimitRPS:    cfg.HTTP.RateRPS,
			RateLimitBurst:  cfg.HTTP.RateBurst,
			EnableAccessLog: level <= slog.LevelDebug,
			Metrics:         m,
			Build:           build,
			ConfigSnapshot:  cfg.Summary(),
		})
		httpadmin.New(loop).Register(api.Mux())
		go func() {
			if err := api.Start(); err != nil {
				log.Fatalf("chatwatch: http api: %v", err)
			}
		}()
		log.Printf("chatwatch: http api ready on %s", cfg.HTTP.Addr)
	}

	select {
	case <-ctx.Done():
	case <-loop.Done():
	}
	loop.Stop()

	if api != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Shutdown(shutdownCtx); err != nil {
			log.Printf("chatwatch: http api shutdown: %v", err)
		}
		cancelShutdown()
	}

	if err := loop.Err(); err != nil {
		log.Printf("chatwatch: stopped on error: %v", err)
		cancel()
		os.Exit(1)
	}

	counts := st.Counts()
	parts := make([]string, 0, len(counts))
	for _, c := range core.Categories() {
		parts = append(parts, fmt.Sprintf("%s=%d", c, counts[c.String()]))
	}
	log.Printf("chatwatch: shutdown complete (%s)", strings.Join(parts, " "))
}
