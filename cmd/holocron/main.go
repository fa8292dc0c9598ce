// Holocron mirrors the Star Wars catalog (characters, films, starships) into
// a local SQLite database and serves it over a JSON API with vote counters.
//
// Usage:
//
//	holocron setup                                  # interactive first-run wizard
//	holocron serve [--config <path>] [--verbose]    # start the HTTP API
//	holocron sync [--config ...] [--attempts n] <characters|films|starships|all>
//	holocron vote [--config ...] <kind> <id>        # add one vote to a record
//	holocron status                                 # show config, database & catalog state
//	holocron version                                # print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/njoerd114/holocron/internal/api"
	"github.com/njoerd114/holocron/internal/config"
	"github.com/njoerd114/holocron/internal/model"
	"github.com/njoerd114/holocron/internal/setup"
	"github.com/njoerd114/holocron/internal/store"
	"github.com/njoerd114/holocron/internal/swapi"
	syncp "github.com/njoerd114/holocron/internal/sync"
	"github.com/njoerd114/holocron/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "setup":
		return runSetup()
	case "serve":
		return runServe(os.Args[2:])
	case "sync":
		return runSync(os.Args[2:])
	case "vote":
		return runVote(os.Args[2:])
	case "status":
		return runStatus()
	case "version":
		fmt.Println("holocron", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q, run 'holocron' for usage", cmd)
	}
}

// printUsage shows help and suggests setup if no config exists.
func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	fmt.Fprintln(os.Stderr, "Holocron — Star Wars catalog mirror with votes")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  holocron setup                        Interactive first-run wizard")
	fmt.Fprintln(os.Stderr, "  holocron serve [--config ...]         Start the HTTP API")
	fmt.Fprintln(os.Stderr, "  holocron sync [--attempts n] <kind>   Import characters, films, starships or all")
	fmt.Fprintln(os.Stderr, "  holocron vote <kind> <id>             Add one vote to a record")
	fmt.Fprintln(os.Stderr, "  holocron status                       Show config, database & catalog state")
	fmt.Fprintln(os.Stderr, "  holocron version                      Print version")
	fmt.Fprintln(os.Stderr, "")

	if cfgErr != nil {
		fmt.Fprintln(os.Stderr, "No config file found; defaults are used. Run 'holocron setup' to create one.")
	}

	os.Exit(1)
	return nil // unreachable
}

// --- Subcommands -------------------------------------------------------------

// runSetup launches the interactive setup wizard and offers a first import.
func runSetup() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfgPath, err := config.DefaultPath()
	if err != nil {
		return err
	}

	wiz := setup.NewWizard(os.Stdin, os.Stdout, cfgPath, logger).
		WithImporter(func(ctx context.Context, cfg *config.Config) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			results, err := a.engine.SyncAll(ctx)
			printResults(results)
			return err
		})
	_, err = wiz.Run(ctx)
	return err
}

// runServe starts the HTTP API and blocks until SIGINT/SIGTERM.
func runServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath, verbose := commonFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}

	a, err := start(*cfgPath, *verbose)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	srv := api.NewServer(a.store, a.engine, a.logger)
	if err := srv.ListenAndServe(ctx, a.cfg.ListenAddr); err != nil {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

// runSync imports one kind or all of them, optionally retrying failed runs.
// Retrying is safe: a failed fetch writes nothing and records that were
// already created are left alone.
func runSync(args []string) error {
	flags := flag.NewFlagSet("sync", flag.ExitOnError)
	cfgPath, verbose := commonFlags(flags)
	attempts := flags.Int("attempts", 1, "number of attempts per kind when the catalog fails")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: holocron sync [--config path] [--attempts n] <characters|films|starships|all>")
	}

	kinds := model.Kinds
	if arg := flags.Arg(0); arg != "all" {
		kind, err := model.ParseKind(arg)
		if err != nil {
			return err
		}
		kinds = []model.Kind{kind}
	}

	a, err := start(*cfgPath, *verbose)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	for _, kind := range kinds {
		var res syncp.Result
		err := swapi.Retry(ctx, *attempts, func(ctx context.Context) error {
			var err error
			res, err = a.engine.Sync(ctx, kind)
			return err
		})
		printResults([]syncp.Result{res})
		if err != nil {
			return fmt.Errorf("syncing %s: %w", kind, err)
		}
	}
	return nil
}

// runVote adds one vote to a stored record and prints the new count.
func runVote(args []string) error {
	flags := flag.NewFlagSet("vote", flag.ExitOnError)
	cfgPath, verbose := commonFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return fmt.Errorf("usage: holocron vote [--config path] <characters|films|starships> <id>")
	}
	kind, err := model.ParseKind(flags.Arg(0))
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(flags.Arg(1), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: must be an integer", flags.Arg(1))
	}

	a, err := start(*cfgPath, *verbose)
	if err != nil {
		return err
	}
	defer a.close()

	rec, err := a.engine.Vote(context.Background(), kind, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s %d now has %d vote(s)\n", kind.Singular(), id, rec.Meta().Votes)
	return nil
}

// runStatus prints the configuration, database and catalog state.
func runStatus() error {
	cfgPath, _ := config.DefaultPath()

	fmt.Println("Holocron Status")
	fmt.Println("───────────────")

	cfg, err := loadConfig(cfgPath)
	switch {
	case err != nil:
		fmt.Printf("  Config:    %s (invalid: %v)\n", cfgPath, err)
		return nil
	case fileExists(cfgPath):
		fmt.Printf("  Config:    %s ✓\n", cfgPath)
	default:
		fmt.Printf("  Config:    not found, using defaults (%s)\n", cfgPath)
	}
	fmt.Printf("  Catalog:   %s\n", cfg.Catalog.BaseURL)
	fmt.Printf("  Listen:    %s\n", cfg.ListenAddr)

	dbPath, err := databasePath(cfg)
	if err != nil {
		return err
	}
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Printf("  Database:  %s (%s)\n", dbPath, humanSize(info.Size()))
		if st, err := store.Open(dbPath); err == nil {
			if counts, err := st.Counts(context.Background()); err == nil {
				for _, kind := range model.Kinds {
					fmt.Printf("    %-11s %d\n", kind+":", counts[kind])
				}
			}
			_ = st.Close()
		}
	} else {
		fmt.Printf("  Database:  not found (%s)\n", dbPath)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := swapi.NewClient(swapi.Config{BaseURL: cfg.Catalog.BaseURL, Timeout: cfg.Catalog.Timeout}, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Catalog.Timeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		fmt.Printf("  Reachable: no (%v)\n", err)
	} else {
		fmt.Printf("  Reachable: yes\n")
	}

	if cfg.Telemetry != nil {
		fmt.Printf("  Telemetry: %s\n", cfg.Telemetry.OTLPEndpoint)
	} else {
		fmt.Printf("  Telemetry: disabled\n")
	}
	return nil
}

// --- Shared wiring -----------------------------------------------------------

func commonFlags(flags *flag.FlagSet) (cfgPath *string, verbose *bool) {
	defaultCfg, _ := config.DefaultPath()
	cfgPath = flags.String("config", defaultCfg, "path to config.yaml")
	verbose = flags.Bool("verbose", false, "enable debug logging")
	return cfgPath, verbose
}

// app holds the components every long-running command needs.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *store.Store
	engine      *syncp.Engine
	shutdownTel telemetry.ShutdownFunc
}

// start loads config, telemetry and the logger, then wires the store,
// catalog client and engine.
func start(cfgPath string, verbose bool) (*app, error) {
	// --- Config --------------------------------------------------------------

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config from %q: %w", cfgPath, err)
	}

	// --- Telemetry (optional) ------------------------------------------------

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	shutdownTel := telemetry.ShutdownFunc(func(context.Context) error { return nil })
	var telErr error
	telCfg, telEnabled := telemetry.FromConfig(cfg.Telemetry, version)
	if telEnabled {
		shutdownTel, telErr = telemetry.Setup(context.Background(), telCfg)
		telEnabled = telErr == nil
	}

	// --- Logger --------------------------------------------------------------

	logger := telemetry.NewLogger(os.Stderr, logLevel, telEnabled)
	slog.SetDefault(logger)
	if telErr != nil {
		logger.Error("telemetry setup failed, continuing without telemetry", "error", telErr)
	} else if telEnabled {
		logger.Info("telemetry enabled", "endpoint", telCfg.OTLPEndpoint)
	}
	logger.Info("config loaded",
		"catalog", cfg.Catalog.BaseURL,
		"listen_addr", cfg.ListenAddr,
		"max_pages", cfg.Catalog.MaxPages,
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		flushTelemetry(logger, shutdownTel)
		return nil, err
	}
	a.shutdownTel = shutdownTel
	return a, nil
}

// newApp opens the store and builds the catalog client and engine.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	dbPath, err := databasePath(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database at %q: %w", dbPath, err)
	}
	logger.Info("database opened", "path", dbPath)

	client, err := swapi.NewClient(swapi.Config{
		BaseURL:           cfg.Catalog.BaseURL,
		Timeout:           cfg.Catalog.Timeout,
		MaxPages:          cfg.Catalog.MaxPages,
		RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
	}, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("initialising catalog client: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		engine: syncp.NewEngine(client, st, logger),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("closing database", "error", err)
	}
	if a.shutdownTel != nil {
		flushTelemetry(a.logger, a.shutdownTel)
	}
}

func flushTelemetry(logger *slog.Logger, shutdown telemetry.ShutdownFunc) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(flushCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
}

// loadConfig reads cfgPath. A missing file yields the defaults so the tool
// works before setup has been run.
func loadConfig(cfgPath string) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func databasePath(cfg *config.Config) (string, error) {
	if cfg.DatabasePath != "" {
		return cfg.DatabasePath, nil
	}
	return store.DefaultDBPath()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func printResults(results []syncp.Result) {
	for _, r := range results {
		if r.Kind == "" {
			continue
		}
		fmt.Printf("%-11s fetched=%d created=%d existing=%d unresolved=%d (%s)\n",
			r.Kind, r.Fetched, r.Created, r.Existing, r.Unresolved, r.Duration.Round(time.Millisecond))
	}
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
