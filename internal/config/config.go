// Package config loads voteledger server settings from flags, environment
// variables, an optional .env file and an optional config file.
//
// Precedence, highest first: command line flags, VOTELEDGER_* environment
// variables (including those loaded from .env), the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/srtaalej/capstone-proj/internal/domain"
	"github.com/srtaalej/capstone-proj/internal/logging"
	"github.com/srtaalej/capstone-proj/internal/pda"
)

// EnvPrefix prefixes every environment variable, e.g. VOTELEDGER_HTTP_ADDR.
const EnvPrefix = "VOTELEDGER"

// Keys.
const (
	ConfigFileKey        = "config"
	HTTPAddrKey          = "http-addr"
	MetricsAddrKey       = "metrics-addr"
	StoreKey             = "store"
	BoltPathKey          = "bolt-path"
	PostgresDSNKey       = "postgres-dsn"
	ClickHouseDSNKey     = "clickhouse-dsn"
	ProgramIDKey         = "program-id"
	IdentityProgramIDKey = "identity-program-id"
	RequireIdentityKey   = "require-identity"
	MaxAttemptsKey       = "max-attempts"
	RateLimitKey         = "rate-limit"
	RateBurstKey         = "rate-burst"
	ShutdownTimeoutKey   = "shutdown-timeout"
	LogLevelKey          = "log-level"
	LogFormatKey         = "log-format"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

var errInvalid = errors.New("invalid configuration")

// Config is the resolved server configuration.
type Config struct {
	HTTPAddr    string
	MetricsAddr string // empty serves /metrics on HTTPAddr only

	Store         string
	BoltPath      string
	PostgresDSN   string
	ClickHouseDSN string // optional analytics mirror

	ProgramID         domain.PublicKey
	IdentityProgramID domain.PublicKey
	RequireIdentity   bool
	MaxAttempts       int

	RateLimit float64 // submissions per second, 0 disables
	RateBurst int

	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// AddFlags registers every key on flags.
func AddFlags(flags *pflag.FlagSet) {
	flags.String(ConfigFileKey, "", "Path to a YAML, JSON or TOML config file")
	flags.String(HTTPAddrKey, ":8080", "HTTP API listen address")
	flags.String(MetricsAddrKey, "", "Separate Prometheus metrics listen address")
	flags.String(StoreKey, StoreMemory, "Account store backend: memory, bolt or postgres")
	flags.String(BoltPathKey, "voteledger.db", "bbolt database file")
	flags.String(PostgresDSNKey, "", "PostgreSQL connection string")
	flags.String(ClickHouseDSNKey, "", "ClickHouse connection string for the transaction mirror")
	flags.String(ProgramIDKey, pda.DefaultVoteProgramID.String(), "Vote program id")
	flags.String(IdentityProgramIDKey, pda.DefaultIdentityProgramID.String(), "Identity token program id")
	flags.Bool(RequireIdentityKey, false, "Require an active identity token to create polls and vote")
	flags.Int(MaxAttemptsKey, 32, "Maximum executions of one instruction under write contention")
	flags.Float64(RateLimitKey, 50, "Transaction submissions per second, 0 disables limiting")
	flags.Int(RateBurstKey, 100, "Transaction submission burst")
	flags.Duration(ShutdownTimeoutKey, 30*time.Second, "Graceful shutdown timeout")
	flags.String(LogLevelKey, "info", "Log level: debug, info, warn or error")
	flags.String(LogFormatKey, logging.FormatJSON, "Log format: json or console")
}

// LoadEnvFile loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load parses args into flags and resolves the configuration.
func Load(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if path := v.GetString(ConfigFileKey); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	programID, err := domain.ParsePublicKey(v.GetString(ProgramIDKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errInvalid, ProgramIDKey, err)
	}
	identityID, err := domain.ParsePublicKey(v.GetString(IdentityProgramIDKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errInvalid, IdentityProgramIDKey, err)
	}

	cfg := &Config{
		HTTPAddr:          v.GetString(HTTPAddrKey),
		MetricsAddr:       v.GetString(MetricsAddrKey),
		Store:             strings.ToLower(v.GetString(StoreKey)),
		BoltPath:          v.GetString(BoltPathKey),
		PostgresDSN:       v.GetString(PostgresDSNKey),
		ClickHouseDSN:     v.GetString(ClickHouseDSNKey),
		ProgramID:         programID,
		IdentityProgramID: identityID,
		RequireIdentity:   v.GetBool(RequireIdentityKey),
		MaxAttempts:       v.GetInt(MaxAttemptsKey),
		RateLimit:         v.GetFloat64(RateLimitKey),
		RateBurst:         v.GetInt(RateBurstKey),
		ShutdownTimeout:   v.GetDuration(ShutdownTimeoutKey),
		LogLevel:          v.GetString(LogLevelKey),
		LogFormat:         v.GetString(LogFormatKey),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field combinations.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", errInvalid, fmt.Sprintf(format, args...))
	}

	if c.HTTPAddr == "" {
		return invalid("%s is required", HTTPAddrKey)
	}
	switch c.Store {
	case StoreMemory:
	case StoreBolt:
		if c.BoltPath == "" {
			return invalid("%s is required for the bolt store", BoltPathKey)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return invalid("%s is required for the postgres store", PostgresDSNKey)
		}
	default:
		return invalid("unknown %s %q", StoreKey, c.Store)
	}
	if c.ProgramID == c.IdentityProgramID {
		return invalid("%s and %s must differ", ProgramIDKey, IdentityProgramIDKey)
	}
	if c.MaxAttempts < 1 {
		return invalid("%s must be positive", MaxAttemptsKey)
	}
	if c.RateLimit < 0 {
		return invalid("%s must not be negative", RateLimitKey)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return invalid("%s must be positive when rate limiting", RateBurstKey)
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("%s must be positive", ShutdownTimeoutKey)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("%s: %v", LogLevelKey, err)
	}
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatConsole {
		return invalid("unknown %s %q", LogFormatKey, c.LogFormat)
	}
	return nil
}

// Deriver returns the address deriver for the configured programs.
func (c *Config) Deriver() *pda.Deriver {
	return pda.NewDeriver(c.ProgramID, c.IdentityProgramID)
}
