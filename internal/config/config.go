package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/spf13/viper"

	"github.com/hobeen-kim/postgres-mcp/internal/policy"
)

// Config is the full server configuration. Values resolve flag, then
// environment, then config file, then default. The YAML file is optional;
// the environment contract alone is enough to run.
type Config struct {
	Database Database `mapstructure:"database"`
	Policy   Policy   `mapstructure:"policy"`
	Proxy    Proxy    `mapstructure:"proxy"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Logging  Logging  `mapstructure:"logging"`
}

// Database holds connection settings and the per-statement safety limits.
type Database struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`

	PoolMax            int `mapstructure:"pool_max"`
	CommandTimeoutS    int `mapstructure:"command_timeout_s"`
	StatementTimeoutMS int `mapstructure:"statement_timeout_ms"`
	MaxRows            int `mapstructure:"max_rows"`
}

// Policy selects the access mode statements are checked against.
type Policy struct {
	AccessMode string `mapstructure:"access_mode"`
	AllowWrite bool   `mapstructure:"allow_write"` // legacy on/off switch
	CacheSize  int    `mapstructure:"cache_size"`
}

// Proxy configures the PostgreSQL wire listener.
type Proxy struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Metrics configures the optional Prometheus endpoint.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Logging configures zerolog output.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults() {
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_max", 5)
	viper.SetDefault("database.command_timeout_s", 10)
	viper.SetDefault("database.statement_timeout_ms", 15000)
	viper.SetDefault("database.max_rows", 200)
	// policy.access_mode deliberately has no default here; Load needs to
	// see whether it was set at all before the legacy switch applies.
	viper.SetDefault("policy.cache_size", policy.DefaultCacheSize)
	viper.SetDefault("proxy.listen_addr", "127.0.0.1:6432")
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.addr", "127.0.0.1:9187")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// bindEnv wires the historical environment names. DATABASE_URI is accepted
// as an alias of DATABASE_URL.
func bindEnv() {
	viper.BindEnv("database.url", "DATABASE_URL", "DATABASE_URI")
	viper.BindEnv("database.host", "PGHOST")
	viper.BindEnv("database.port", "PGPORT")
	viper.BindEnv("database.user", "PGUSER")
	viper.BindEnv("database.password", "PGPASSWORD")
	viper.BindEnv("database.dbname", "PGDATABASE")
	viper.BindEnv("database.pool_max", "PG_POOL_MAX")
	viper.BindEnv("database.command_timeout_s", "PG_COMMAND_TIMEOUT_S")
	viper.BindEnv("database.statement_timeout_ms", "PG_STATEMENT_TIMEOUT_MS")
	viper.BindEnv("database.max_rows", "PG_MAX_ROWS")
	viper.BindEnv("policy.access_mode", "PG_ACCESS_MODE")
	viper.BindEnv("policy.allow_write", "PG_ALLOW_WRITE")
	viper.BindEnv("policy.cache_size", "PG_DECISION_CACHE")
	viper.BindEnv("proxy.listen_addr", "PROXY_LISTEN_ADDR")
	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")
	viper.BindEnv("metrics.addr", "METRICS_ADDR")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")
}

// Load reads configuration. path overrides the default search locations
// (./config/config.yaml, ./config.yaml) when non-empty, in which case the
// file must exist.
func Load(path string) (Config, error) {
	setDefaults()
	bindEnv()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	// PG_ALLOW_WRITE predates access modes. It only upgrades the default;
	// an explicitly configured mode always wins.
	if cfg.Policy.AccessMode == "" {
		cfg.Policy.AccessMode = string(policy.ModeReadonly)
		if cfg.Policy.AllowWrite {
			cfg.Policy.AccessMode = string(policy.ModeUnrestricted)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would run with no safety limits or an
// unknown mode.
func (c Config) Validate() error {
	if _, err := policy.ParseAccessMode(c.Policy.AccessMode); err != nil {
		return err
	}
	if c.Database.PoolMax < 1 {
		return fmt.Errorf("pool_max must be at least 1, got %d", c.Database.PoolMax)
	}
	if c.Database.CommandTimeoutS < 1 {
		return fmt.Errorf("command_timeout_s must be at least 1, got %d", c.Database.CommandTimeoutS)
	}
	if c.Database.StatementTimeoutMS < 1 {
		return fmt.Errorf("statement_timeout_ms must be at least 1, got %d", c.Database.StatementTimeoutMS)
	}
	if c.Database.MaxRows < 1 {
		return fmt.Errorf("max_rows must be at least 1, got %d", c.Database.MaxRows)
	}
	return nil
}

// AccessMode returns the parsed policy mode. Validate has already checked it.
func (c Config) AccessMode() policy.AccessMode {
	mode, _ := policy.ParseAccessMode(c.Policy.AccessMode)
	return mode
}

// DSN builds the connection string. DATABASE_URL (or DATABASE_URI) wins;
// otherwise the discrete PG* settings are assembled into one.
func (d Database) DSN() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}
	if d.Host == "" || d.User == "" || d.DBName == "" {
		return "", errors.New("missing database config: set DATABASE_URL, or PGHOST, PGUSER and PGDATABASE")
	}
	u := &url.URL{
		Scheme: "postgresql",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.DBName,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	return u.String(), nil
}
