// Servicedesk Core - authentication and session service
//
// This is the main entry point. It has two commands:
//
//	servicedesk [serve] [-config path]     run the HTTP API (default)
//	servicedesk bootstrap -email e -name n  create the first admin account
//
// The bootstrap password is read from -password or, when that flag is empty,
// from SERVICEDESK_BOOTSTRAP_PASSWORD.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/servicedesk-core/migrations"

	"github.com/nerrad567/servicedesk-core/internal/api"
	"github.com/nerrad567/servicedesk-core/internal/audit"
	"github.com/nerrad567/servicedesk-core/internal/auth"
	"github.com/nerrad567/servicedesk-core/internal/events"
	"github.com/nerrad567/servicedesk-core/internal/infrastructure/config"
	"github.com/nerrad567/servicedesk-core/internal/infrastructure/database"
	"github.com/nerrad567/servicedesk-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/servicedesk-core/internal/infrastructure/logging"
	"github.com/nerrad567/servicedesk-core/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path. It is optional; defaults and
// SERVICEDESK_* variables are enough to run.
const defaultConfigPath = "configs/config.yaml"

// configPathEnv overrides defaultConfigPath.
const configPathEnv = "SERVICEDESK_CONFIG"

// bootstrapPasswordEnv supplies the bootstrap password without putting it on
// the command line.
const bootstrapPasswordEnv = "SERVICEDESK_BOOTSTRAP_PASSWORD"

var errUsage = errors.New("usage: servicedesk [serve|bootstrap] [flags]")

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to a command, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	cmd := "serve"
	if len(args) > 0 && (args[0] == "serve" || args[0] == "bootstrap") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "bootstrap":
		return runBootstrap(ctx, args, stdout)
	default:
		return runServe(ctx, args)
	}
}

// runServe starts the API server and blocks until ctx is cancelled.
func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", getConfigPath(), "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting servicedesk",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", *configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	repos := newStores(db)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	codec, err := newCodec(cfg.Auth, log)
	if err != nil {
		return err
	}

	fanout := newFanout(log, repos.audit, mqttClient, influxClient)
	defer fanout.Wait() // Detached publishes finish before the MQTT client closes
	authority := auth.NewAuthority(auth.AuthorityDeps{
		Users:  repos.users,
		Tokens: repos.tokens,
		Hasher: auth.NewPasswordHasher(cfg.Auth.PasswordCost),
		Codec:  codec,
		Events: fanout,
		Logger: log.With("component", "auth").Logger,
	})
	log.Info("session authority ready", "event_sinks", fanout.Len())

	var sweeper auth.Sweeper = repos.tokens
	if influxClient != nil {
		sweeper = events.MeteredSweeper{Tokens: repos.tokens, Metrics: influxClient}
	}
	go auth.RunSweeper(ctx, sweeper, cfg.Auth.SweepInterval, log.With("component", "sweeper").Logger)
	log.Info("refresh token sweeper started", "interval", cfg.Auth.SweepInterval.String())

	srv, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log.With("component", "api"),
		Authority: authority,
		Resolver:  auth.NewResolver(codec),
		AuditRepo: repos.audit,
		DB:        db,
		MQTT:      mqttClient,
		InfluxDB:  influxClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// runBootstrap creates the first admin account and exits.
func runBootstrap(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	configPath := fs.String("config", getConfigPath(), "path to the YAML configuration file")
	email := fs.String("email", "", "admin email address")
	password := fs.String("password", "", "admin password (or set "+bootstrapPasswordEnv+")")
	name := fs.String("name", "", "admin display name")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *password == "" {
		*password = os.Getenv(bootstrapPasswordEnv)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // Process exits right after

	codec, err := newCodec(cfg.Auth, log)
	if err != nil {
		return err
	}

	repos := newStores(db)
	authority := auth.NewAuthority(auth.AuthorityDeps{
		Users:  repos.users,
		Tokens: repos.tokens,
		Hasher: auth.NewPasswordHasher(cfg.Auth.PasswordCost),
		Codec:  codec,
		Events: events.NewFanout(log.Logger, events.AuditSink{Repo: repos.audit}),
		Logger: log.Logger,
	})

	user, err := authority.Bootstrap(ctx, *email, *password, *name)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	fmt.Fprintf(stdout, "created admin %s (%s)\n", user.Email, user.ID)
	return nil
}

// getConfigPath returns SERVICEDESK_CONFIG, else the default path if it
// exists, else "" to run on defaults and environment alone.
func getConfigPath() string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// openDatabase opens the configured database and applies migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		DSN:         cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "driver", db.Driver(), "path", db.Path())

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}

// repositories groups the stores for one database driver.
type repositories struct {
	users  auth.UserRepository
	tokens auth.TokenRepository
	audit  audit.Repository
}

func newStores(db *database.DB) repositories {
	return storesFor(db.Driver(), db.DB)
}

func storesFor(driver string, db *sql.DB) repositories {
	if driver == database.DriverPostgres {
		return repositories{
			users:  auth.NewPostgresUserRepository(db),
			tokens: auth.NewPostgresTokenRepository(db),
			audit:  audit.NewPostgresRepository(db),
		}
	}
	return repositories{
		users:  auth.NewUserRepository(db),
		tokens: auth.NewTokenRepository(db),
		audit:  audit.NewSQLiteRepository(db),
	}
}

// newCodec builds the token codec. Unparseable lifetimes fall back to the
// default with a warning rather than stopping the service.
func newCodec(cfg config.AuthConfig, log *logging.Logger) (*auth.TokenCodec, error) {
	accessTTL, ok := auth.ParseLifetime(cfg.AccessTokenTTL)
	if !ok {
		log.Warn("invalid access token lifetime, using fallback",
			"value", cfg.AccessTokenTTL,
			"fallback", accessTTL.String(),
		)
	}
	refreshTTL, ok := auth.ParseLifetime(cfg.RefreshTokenTTL)
	if !ok {
		log.Warn("invalid refresh token lifetime, using fallback",
			"value", cfg.RefreshTokenTTL,
			"fallback", refreshTTL.String(),
		)
	}

	var opts []auth.CodecOption
	if cfg.Issuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.Issuer))
	}

	codec, err := auth.NewTokenCodec([]byte(cfg.JWTSecret), accessTTL, refreshTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating token codec: %w", err)
	}
	log.Info("token codec ready",
		"access_ttl", accessTTL.String(),
		"refresh_ttl", refreshTTL.String(),
	)
	return codec, nil
}

// newFanout wires the event sinks that are available. The audit sink is
// always present.
func newFanout(log *logging.Logger, auditRepo audit.Repository, mqttClient *mqtt.Client, influxClient *influxdb.Client) *events.Fanout {
	sinks := []events.Sink{events.AuditSink{Repo: auditRepo}}
	if mqttClient != nil {
		sinks = append(sinks, events.MQTTSink{Publisher: mqttClient, Topics: mqttClient.Topics()})
	}
	if influxClient != nil {
		sinks = append(sinks, events.MetricsSink{Writer: influxClient})
	}
	return events.NewFanout(log.With("component", "events").Logger, sinks...)
}
