// Edge Agent - device management over MQTT/SmartREST
//
// This is the main entry point for the edge agent. The agent keeps a
// session with the management endpoint, announces the device and its
// supported operations, and hands inbound operations to the built-in
// capability handlers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/edge-agent/internal/agent"
	"github.com/nerrad567/edge-agent/internal/credentials"
	"github.com/nerrad567/edge-agent/internal/device"
	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/edge-agent/internal/infrastructure/database"
	"github.com/nerrad567/edge-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/edge-agent/internal/infrastructure/logging"
	"github.com/nerrad567/edge-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/edge-agent/internal/metrics"
	"github.com/nerrad567/edge-agent/internal/plugins"
	"github.com/nerrad567/edge-agent/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/agent.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds the parsed command line.
type flags struct {
	configPath string
	serial     string
	simulated  bool
	version    bool
	help       bool
}

func parseFlags(args []string, out io.Writer) (*flags, *pflag.FlagSet, error) {
	f := &flags{}
	flagSet := pflag.NewFlagSet("edgeagent", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&f.configPath, "config", "", "path to the configuration file (default: $EDGEAGENT_CONFIG or "+defaultConfigPath+")")
	flagSet.StringVar(&f.serial, "serial", "", "device serial (overrides agent.serial and host detection)")
	flagSet.BoolVar(&f.simulated, "simulated", false, "report the simulated device model")
	flagSet.BoolVar(&f.version, "version", false, "print version and exit")
	flagSet.BoolVarP(&f.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		return nil, flagSet, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, flagSet, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return f, flagSet, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command line arguments without the program name
//   - stdout: Destination for --version and --help output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	f, flagSet, err := parseFlags(args, stdout)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if f.help {
		fmt.Fprintln(stdout, "Usage: edgeagent [flags]")
		flagSet.PrintDefaults()
		return nil
	}
	if f.version {
		fmt.Fprintf(stdout, "edgeagent %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting edge agent",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(f.configPath)
	provider, err := config.NewProvider(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := provider.Current()

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)
	provider.SetOnError(func(err error) {
		log.Warn("configuration reload failed, keeping previous settings", "error", err)
	})
	mqtt.SetLibraryLogger(log.Component("paho"), cfg.Logging.Level == "debug")

	identity, err := device.NewResolver().Resolve(ctx, device.Settings{
		FlagSerial:   f.serial,
		ConfigSerial: cfg.Agent.Serial,
		NamePrefix:   cfg.Agent.Name,
		Type:         cfg.Agent.Type,
		Simulated:    f.simulated || cfg.Agent.Simulated,
	})
	if err != nil {
		return fmt.Errorf("resolving device identity: %w", err)
	}
	log = log.WithDevice(identity.Serial)
	log.Info("device identity resolved", "name", identity.Name, "type", identity.Type, "model", identity.Model)

	// Credential source
	var creds credentials.Source = credentials.NewConfigSource(provider)
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = openCredentialStore(ctx, cfg, provider, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		store := credentials.NewStore(db, func() bool { return provider.Connection().CertAuth })
		// Edits to mqtt.auth are imported on the next connect attempt.
		store.Follow(credentials.NewConfigSource(provider))
		creds = store
	}

	// Measurement sink
	opts := agent.Options{
		Config:        provider,
		Credentials:   creds,
		Identity:      identity,
		Catalog:       plugins.NewCatalog(provider),
		Logger:        log.Component("agent"),
		HandlerLogger: log.Component("plugins"),
		Workers:       cfg.Dispatch.Workers,
	}
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		opts.Sink = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Metrics
	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Recorder = metrics.NewPrometheusRecorder(registry)
	}

	a, err := agent.New(opts)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(gctx)
	})
	if registry != nil {
		handler := metrics.Handler(registry, healthCheck(ctx, a, db), log.Component("metrics"))
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Listen, handler, log)
		})
	}

	err = g.Wait()
	log.Info("edge agent stopped")
	return err
}

// serveMetrics runs the scrape endpoint until ctx ends. The endpoint is
// optional: a listen or serve failure is logged and never stops the agent.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, log *logging.Logger) error {
	log.Info("metrics endpoint listening", "addr", addr)
	if err := metrics.Serve(ctx, addr, handler); err != nil {
		log.Error("metrics endpoint unavailable", "addr", addr, "error", err)
	}
	return nil
}

// openCredentialStore opens and migrates the database and imports the
// configured credentials when they differ from the stored ones.
func openCredentialStore(ctx context.Context, cfg *config.Config, provider *config.Provider, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	store := credentials.NewStore(db, nil)
	auth := provider.Auth()
	updated, err := store.Sync(ctx, credentials.Credentials{
		Tenant:   auth.Tenant,
		Username: auth.Username,
		Password: auth.Password,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("importing credentials: %w", err)
	}
	if updated {
		log.Info("credentials store updated from configuration", "tenant", auth.Tenant, "username", auth.Username)
	}
	return db, nil
}

// healthCheck reports unhealthy while the session is down or the database
// does not answer.
func healthCheck(ctx context.Context, a *agent.Agent, db *database.DB) metrics.HealthFunc {
	return func() error {
		if !a.Session().IsConnected() {
			return fmt.Errorf("session %s", a.Session().State())
		}
		if db != nil {
			if err := db.HealthCheck(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		return nil
	}
}

// getConfigPath returns the configuration file path.
// Priority: --config flag, then EDGEAGENT_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("EDGEAGENT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
