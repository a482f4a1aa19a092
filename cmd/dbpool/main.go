// dbpool runs a bounded connection pool against a database and serves its
// statistics over HTTP.
//
// Usage:
//
//	dbpool [flags]               Start the pool and the status server
//	dbpool check [flags]         Acquire, probe and release one connection
//	dbpool init-config [flags]   Write the default configuration file
//
// Flags:
//
//	-config string
//	    Path to configuration file, TOML or YAML (default "~/.dbpool/config.toml")
//	-kind string
//	    Database kind, "sql" or "redis" (overrides config)
//	-driver string
//	    database/sql driver name (overrides config)
//	-url string
//	    Connection target (overrides config)
//	-min int
//	    Idle connections to keep cached (overrides config)
//	-max int
//	    Maximum open connections (overrides config)
//	-listen string
//	    Status server address (overrides config)
//	-v
//	    Enable verbose logging
//	-version
//	    Print version and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	// mysql is registered by lib/factory, which parses its DSNs.
	_ "github.com/mattn/go-sqlite3"

	"github.com/go-i2p/dbpool/lib/config"
	"github.com/go-i2p/dbpool/lib/factory"
	"github.com/go-i2p/dbpool/lib/metrics"
	"github.com/go-i2p/dbpool/lib/web"
	"github.com/go-i2p/dbpool/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// options holds the parsed command line.
type options struct {
	configPath string
	kind       string
	driver     string
	url        string
	minSize    int
	maxSize    int
	listen     string
	verbose    bool
	version    bool
	command    string
}

func parseFlags(args []string) (*options, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	opts := &options{}
	fs := flag.NewFlagSet("dbpool", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", filepath.Join(homeDir, ".dbpool", "config.toml"), "Path to configuration file, TOML or YAML")
	fs.StringVar(&opts.kind, "kind", "", "Database kind, \"sql\" or \"redis\" (overrides config)")
	fs.StringVar(&opts.driver, "driver", "", "database/sql driver name (overrides config)")
	fs.StringVar(&opts.url, "url", "", "Connection target (overrides config)")
	fs.IntVar(&opts.minSize, "min", -1, "Idle connections to keep cached (overrides config)")
	fs.IntVar(&opts.maxSize, "max", -1, "Maximum open connections (overrides config)")
	fs.StringVar(&opts.listen, "listen", "", "Status server address (overrides config)")
	fs.BoolVar(&opts.verbose, "v", false, "Enable verbose logging")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "dbpool - Bounded database connection pool\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  dbpool [flags]               Start the pool and the status server\n")
		fmt.Fprintf(os.Stderr, "  dbpool check [flags]         Acquire, probe and release one connection\n")
		fmt.Fprintf(os.Stderr, "  dbpool init-config [flags]   Write the default configuration file\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	// Allow the subcommand before or after the flags.
	if len(args) > 0 && (args[0] == "check" || args[0] == "init-config" || args[0] == "serve") {
		opts.command = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		if opts.command != "" || len(rest) > 1 {
			return nil, fmt.Errorf("unexpected arguments: %v", rest)
		}
		opts.command = rest[0]
	}
	if opts.command == "" {
		opts.command = "serve"
	}
	return opts, nil
}

// apply overlays command-line values onto cfg.
func (o *options) apply(cfg *config.Config) {
	if o.kind != "" {
		cfg.Database.Kind = o.kind
	}
	if o.driver != "" {
		cfg.Database.Driver = o.driver
	}
	if o.url != "" {
		cfg.Database.URL = o.url
	}
	if o.minSize >= 0 {
		cfg.Pool.MinSize = o.minSize
	}
	if o.maxSize >= 0 {
		cfg.Pool.MaxSize = o.maxSize
	}
	if o.listen != "" {
		cfg.Web.Listen = o.listen
	}
}

func run(args []string) int {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if opts.version {
		fmt.Printf("dbpool version %s\n", version.Full())
		return 0
	}

	logLevel := slog.LevelInfo
	if opts.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	switch opts.command {
	case "init-config":
		return handleInitConfig(opts, logger)
	case "check", "serve":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", opts.command)
		return 2
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	if opts.command == "check" {
		return handleCheck(cfg, logger)
	}
	return handleServe(cfg, logger)
}

// handleInitConfig writes the defaults, with command-line overrides applied.
func handleInitConfig(opts *options, logger *slog.Logger) int {
	if _, err := os.Stat(opts.configPath); err == nil {
		fmt.Fprintf(os.Stderr, "Config file already exists: %s\n", opts.configPath)
		return 1
	}

	cfg := config.DefaultConfig()
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}
	if err := config.SaveConfig(cfg, opts.configPath); err != nil {
		logger.Error("failed to write config", "error", err)
		return 1
	}

	fmt.Printf("Wrote %s\n", opts.configPath)
	return 0
}

// handleCheck opens the pool, round-trips one connection and prints the stats.
func handleCheck(cfg *config.Config, logger *slog.Logger) int {
	p, _, err := factory.NewPool(cfg)
	if err != nil {
		logger.Error("failed to create pool", "error", err)
		return 1
	}
	defer p.Close()

	start := time.Now()
	h, err := p.Acquire()
	if err != nil {
		logger.Error("acquire failed", "error", err)
		return 1
	}
	valid, err := h.IsValid(web.DefaultProbeTimeout)
	if relErr := p.Release(h); relErr != nil {
		logger.Error("release failed", "error", relErr)
		return 1
	}
	if err != nil {
		logger.Error("validity check failed", "error", err)
		return 1
	}
	if !valid {
		fmt.Fprintln(os.Stderr, "Connection is not valid")
		return 1
	}

	out, err := json.MarshalIndent(p.Stats(), "", "  ")
	if err != nil {
		logger.Error("failed to encode stats", "error", err)
		return 1
	}
	fmt.Printf("OK in %s\n%s\n", time.Since(start).Round(time.Microsecond), out)
	return 0
}

// handleServe runs the pool and the status server until SIGINT or SIGTERM.
func handleServe(cfg *config.Config, logger *slog.Logger) int {
	p, breaker, err := factory.NewPool(cfg)
	if err != nil {
		logger.Error("failed to create pool", "error", err)
		return 1
	}
	defer p.Close()

	srv, err := web.New(web.Config{
		ListenAddr: cfg.Web.Listen,
		Pool:       p,
		Breaker:    breaker,
		ProbeRate:  cfg.Web.ProbeRate,
		ProbeBurst: cfg.Web.ProbeBurst,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to create status server", "error", err)
		return 1
	}
	if err := srv.Start(); err != nil {
		logger.Error("failed to start status server", "error", err)
		return 1
	}
	metrics.RecordStartTime()

	logger.Info("dbpool started",
		"kind", cfg.Database.Kind,
		"driver", cfg.Database.Driver,
		"min", cfg.Pool.MinSize,
		"max", cfg.Pool.MaxSize,
		"addr", srv.Addr(),
		"version", version.Full(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received signal, shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return 1
	}

	logger.Info("dbpool stopped")
	return 0
}
