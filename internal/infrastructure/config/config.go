package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "SERVICEDESK_"

// DotEnvFile is loaded, if present, before environment overrides are applied.
// Variables already set in the process environment win over the file.
var DotEnvFile = ".env"

// Config is the root configuration structure for servicedesk-core.
// Values come from defaults, then the YAML file, then the environment.
type Config struct {
	Site     SiteConfig     `yaml:"site"     envPrefix:"SITE_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`
	API      APIConfig      `yaml:"api"      envPrefix:"API_"`
	Auth     AuthConfig     `yaml:"auth"     envPrefix:"AUTH_"`
	MQTT     MQTTConfig     `yaml:"mqtt"     envPrefix:"MQTT_"`
	InfluxDB InfluxDBConfig `yaml:"influxdb" envPrefix:"INFLUXDB_"`
	Logging  LoggingConfig  `yaml:"logging"  envPrefix:"LOGGING_"`
}

// SiteConfig identifies this deployment.
type SiteConfig struct {
	ID   string `yaml:"id"   env:"ID"`
	Name string `yaml:"name" env:"NAME"`
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects and configures the session store.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`

	// SQLite
	Path        string `yaml:"path"         env:"PATH"`
	WALMode     bool   `yaml:"wal_mode"     env:"WAL_MODE"`
	BusyTimeout int    `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`

	// PostgreSQL
	DSN string `yaml:"dsn" env:"DSN"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"     env:"HOST"`
	Port     int              `yaml:"port"     env:"PORT"`
	TLS      TLSConfig        `yaml:"tls"      envPrefix:"TLS_"`
	Timeouts APITimeoutConfig `yaml:"timeouts" envPrefix:"TIMEOUT_"`
	CORS     CORSConfig       `yaml:"cors"     envPrefix:"CORS_"`
	Cookies  CookieConfig     `yaml:"cookies"  envPrefix:"COOKIE_"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"   env:"ENABLED"`
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `yaml:"key_file"  env:"KEY_FILE"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"  env:"READ"`
	Write int `yaml:"write" env:"WRITE"`
	Idle  int `yaml:"idle"  env:"IDLE"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// CookieConfig controls the session cookies set on login and refresh.
type CookieConfig struct {
	Secure   bool   `yaml:"secure"    env:"SECURE"`
	Domain   string `yaml:"domain"    env:"DOMAIN"`
	SameSite string `yaml:"same_site" env:"SAME_SITE"`
}

// AuthConfig contains session and token settings.
type AuthConfig struct {
	// JWTSecret signs access tokens. Required, at least 32 bytes.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`

	// AccessTokenTTL and RefreshTokenTTL use the <n><s|m|h|d> form, e.g. "15m", "7d".
	AccessTokenTTL  string `yaml:"access_token_ttl"  env:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL string `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL"`

	Issuer        string        `yaml:"issuer"         env:"ISSUER"`
	PasswordCost  int           `yaml:"password_cost"  env:"PASSWORD_COST"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// MQTTConfig contains MQTT broker connection settings. The broker is used to
// publish session events and is optional.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"      env:"ENABLED"`
	Broker      MQTTBrokerConfig    `yaml:"broker"       envPrefix:"BROKER_"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"          env:"QOS"`
	TopicPrefix string              `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"      env:"HOST"`
	Port     int    `yaml:"port"      env:"PORT"`
	TLS      bool   `yaml:"tls"       env:"TLS"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for session metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"        env:"ENABLED"`
	URL           string `yaml:"url"            env:"URL"`
	Token         string `yaml:"token"          env:"TOKEN"`
	Org           string `yaml:"org"            env:"ORG"`
	Bucket        string `yaml:"bucket"         env:"BUCKET"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values
//  2. YAML file values, if path is not empty
//  3. Variables from DotEnvFile, if it exists
//  4. SERVICEDESK_* environment variables
//
// For example SERVICEDESK_AUTH_JWT_SECRET or SERVICEDESK_DATABASE_DSN.
// The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadDotEnv() error {
	if DotEnvFile == "" {
		return nil
	}
	if err := godotenv.Load(DotEnvFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", DotEnvFile, err)
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "servicedesk",
			Name: "Service Desk",
		},
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			Path:        "./data/servicedesk.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Cookies: CookieConfig{
				SameSite: "lax",
			},
		},
		Auth: AuthConfig{
			AccessTokenTTL:  "15m",
			RefreshTokenTTL: "7d",
			Issuer:          "servicedesk",
			PasswordCost:    12,
			SweepInterval:   time.Hour,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "servicedesk-core",
			},
			QoS:         1,
			TopicPrefix: "servicedesk",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverSQLite, DriverPostgres))
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
	}
	switch strings.ToLower(c.API.Cookies.SameSite) {
	case "", "lax", "strict", "none":
	default:
		errs = append(errs, "api.cookies.same_site must be lax, strict or none")
	}

	// Anyone holding the secret can mint admin tokens, so it is never defaulted.
	const minJWTSecretLength = 32
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (set "+EnvPrefix+"AUTH_JWT_SECRET)")
	} else if len(c.Auth.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "auth.jwt_secret must be at least 32 bytes")
	}
	if c.Auth.PasswordCost != 0 && (c.Auth.PasswordCost < bcrypt.MinCost || c.Auth.PasswordCost > bcrypt.MaxCost) {
		errs = append(errs, fmt.Sprintf("auth.password_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
