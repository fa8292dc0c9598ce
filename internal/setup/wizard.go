package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/njoerd114/holocron/internal/config"
	"github.com/njoerd114/holocron/internal/store"
	"github.com/njoerd114/holocron/internal/swapi"
)

// PingFunc checks that a catalog answers at baseURL.
type PingFunc func(ctx context.Context, baseURL string, timeout time.Duration) error

// ImportFunc runs a first sync with the freshly written config.
type ImportFunc func(ctx context.Context, cfg *config.Config) error

// Wizard guides the user through first-run configuration.
type Wizard struct {
	prompt   *Prompter
	logger   *slog.Logger
	w        io.Writer
	cfgPath  string
	ping     PingFunc
	importFn ImportFunc
}

// NewWizard creates a Wizard that writes its config to cfgPath. The catalog
// is checked with a real HTTP request unless [Wizard.WithPing] replaces it.
func NewWizard(r io.Reader, w io.Writer, cfgPath string, logger *slog.Logger) *Wizard {
	wiz := &Wizard{
		prompt:  NewPrompter(r, w),
		logger:  logger,
		w:       w,
		cfgPath: cfgPath,
	}
	wiz.ping = wiz.pingCatalog
	return wiz
}

// WithPing replaces the catalog reachability check.
func (wiz *Wizard) WithPing(fn PingFunc) *Wizard {
	wiz.ping = fn
	return wiz
}

// WithImporter enables the optional first import at the end of the wizard.
func (wiz *Wizard) WithImporter(fn ImportFunc) *Wizard {
	wiz.importFn = fn
	return wiz
}

// Run executes the interactive setup wizard and returns the saved config.
// When the user keeps an existing config, that config is returned instead.
func (wiz *Wizard) Run(ctx context.Context) (*config.Config, error) {
	fmt.Fprintf(wiz.w, "\nWelcome to Holocron Setup!\n")
	fmt.Fprintf(wiz.w, "This wizard writes %s.\n\n", wiz.cfgPath)

	if _, statErr := os.Stat(wiz.cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			cfg, err := config.Load(wiz.cfgPath)
			if err != nil {
				return nil, err
			}
			return cfg, wiz.offerImport(ctx, cfg)
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	// Step 1: remote catalog.
	fmt.Fprintf(wiz.w, "Step 1/4 — Remote Catalog\n")

	baseURL := wiz.prompt.String("Catalog base URL", config.DefaultBaseURL)
	timeout := wiz.prompt.Duration("Request timeout", config.DefaultTimeout, time.Second, time.Minute)

	fmt.Fprintf(wiz.w, "  Contacting catalog...")
	if err := wiz.ping(ctx, baseURL, timeout); err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		wiz.logger.Warn("catalog ping failed", "url", baseURL, "error", err)
		if !wiz.prompt.Confirm(fmt.Sprintf("Catalog not reachable (%v). Keep this URL anyway?", err), false) {
			return nil, fmt.Errorf("cannot reach catalog at %q: %w", baseURL, err)
		}
	} else {
		fmt.Fprintf(wiz.w, " ✓\n")
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 2: storage and API.
	fmt.Fprintf(wiz.w, "Step 2/4 — Storage & HTTP API\n")

	defaultDB, err := store.DefaultDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolving database path: %w", err)
	}
	dbPath := wiz.prompt.String("Database file", defaultDB)
	listenAddr := wiz.prompt.String("HTTP listen address", config.DefaultListenAddr)
	fmt.Fprintf(wiz.w, "\n")

	// Step 3: telemetry.
	fmt.Fprintf(wiz.w, "Step 3/4 — Telemetry\n")

	tel, err := wiz.telemetry()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(wiz.w, "\n")

	// Step 4: write config.
	fmt.Fprintf(wiz.w, "Step 4/4 — Save Configuration\n")

	cfg := &config.Config{
		ListenAddr: listenAddr,
		Catalog: config.CatalogConfig{
			BaseURL: baseURL,
			Timeout: timeout,
		},
		Telemetry: tel,
	}
	if dbPath != defaultDB {
		cfg.DatabasePath = dbPath
	}
	if err := config.Save(wiz.cfgPath, cfg); err != nil {
		return nil, fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", wiz.cfgPath)

	return cfg, wiz.offerImport(ctx, cfg)
}

// telemetry asks for the optional OTLP collector settings.
func (wiz *Wizard) telemetry() (*config.TelemetryConfig, error) {
	if !wiz.prompt.Confirm("Export traces, metrics and logs to an OTLP collector?", false) {
		return nil, nil
	}

	tel := &config.TelemetryConfig{
		OTLPEndpoint: wiz.prompt.String("Collector gRPC endpoint", "localhost:4317"),
	}
	idx, err := wiz.prompt.Select("Collector connection", []string{"TLS", "plaintext (local collector)"})
	if err != nil {
		return nil, fmt.Errorf("selecting collector connection: %w", err)
	}
	tel.Insecure = idx == 1
	if token := wiz.prompt.Optional("Authorization header value"); token != "" {
		tel.Headers = map[string]string{"Authorization": token}
	}
	return tel, nil
}

// offerImport asks whether to run a first sync of every kind.
func (wiz *Wizard) offerImport(ctx context.Context, cfg *config.Config) error {
	if wiz.importFn == nil {
		return nil
	}
	if !wiz.prompt.Confirm("Import characters, films and starships now?", true) {
		fmt.Fprintf(wiz.w, "\n  Skipping import.\n")
		fmt.Fprintf(wiz.w, "  Import later with: holocron sync all\n")
		fmt.Fprintf(wiz.w, "  Start the API with: holocron serve\n\n")
		return nil
	}
	if err := wiz.importFn(ctx, cfg); err != nil {
		return fmt.Errorf("importing catalog: %w", err)
	}
	fmt.Fprintf(wiz.w, "\nSetup complete! Start the API with: holocron serve\n\n")
	return nil
}

func (wiz *Wizard) pingCatalog(ctx context.Context, baseURL string, timeout time.Duration) error {
	client, err := swapi.NewClient(swapi.Config{BaseURL: baseURL, Timeout: timeout}, wiz.logger)
	if err != nil {
		return err
	}
	return client.Ping(ctx)
}
