package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/always-cache/cachetx"
	"github.com/always-cache/cachetx/cache"
	"github.com/always-cache/cachetx/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// CLI flags
	configFlag         string
	portFlag           int
	originFlag         string
	hostFlag           string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFlag, "config", "", "Config file to use")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "", "Cache DB file name (use 'memory' for in-memory cache)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load config")
	}
	// flags override the config file and environment
	if originFlag != "" {
		cfg.Origin = originFlag
	}
	if hostFlag != "" {
		cfg.Host = hostFlag
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if dbFilenameFlag != "" {
		cfg.DB = dbFilenameFlag
	}
	if logFilenameFlag != "" {
		cfg.Log.File = logFilenameFlag
	}
	if verbosityTraceFlag {
		cfg.Log.Level = "trace"
	}

	setupLogging(cfg.Log)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	originURL, _ := cfg.OriginURL()

	backend, err := openBackend(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open cache")
	}
	defer backend.Close()

	network := cachetx.NewHTTPNetwork(*originURL, cfg.Host)
	if len(cfg.Rules) > 0 {
		network.ModifyResponse = cfg.Rules.Apply
	}

	c := cachetx.New(cachetx.Config{
		Backend:            backend,
		Network:            network,
		OriginId:           originURL.Host,
		Logger:             &log.Logger,
		LockTimeout:        cfg.LockTimeout,
		PartialLockTimeout: cfg.PartialLockTimeout,
		PrefetchReuse:      cfg.PrefetchReuse,
	})
	defer c.Close()
	prefetcher := cachetx.NewPrefetcher(c, cfg.PrefetchConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.Prefetch) > 0 {
		go func() {
			if err := prefetcher.Prefetch(ctx, cfg.Prefetch...); err != nil {
				log.Error().Err(err).Msg("Prefetch failed")
			}
		}()
	}
	if cfg.RefreshInterval > 0 {
		go prefetcher.Run(ctx, cfg.RefreshInterval)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router(c, cachetx.NewHandler(c, prefetcher)),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", cfg.Port, originURL.String(), cfg.Host)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func router(c *cachetx.Cache, handler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/.cachetx/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(c.Stats())
	})
	r.Handle("/*", handler)
	return r
}

func openBackend(db string) (cache.Backend, error) {
	if db == "memory" {
		return cache.NewMemBackend(), nil
	}
	return cache.NewSQLiteBackend(db)
}

func setupLogging(cfg config.Log) {
	logLevel, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		logLevel = zerolog.DebugLevel
	}

	// set up log output to stdout
	// also output to a rotated logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if cfg.File != "" {
		logOutputs = append(logOutputs, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Timestamp().Str("version", version).Logger()
}
