package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	httpapi "github.com/aussiebroadwan/passage/internal/auth/http"
	"github.com/aussiebroadwan/passage/internal/auth/mail"
	"github.com/aussiebroadwan/passage/internal/auth/service"
	"github.com/aussiebroadwan/passage/pkg/cryptox"
	"github.com/aussiebroadwan/passage/pkg/httpx"
)

type StoreConfig struct {
	Driver      string `koanf:"driver"`       // sqlite, postgres or redis (default: sqlite)
	SQLitePath  string `koanf:"sqlite_path"`  // default: ./passage.db
	PostgresURL string `koanf:"postgres_url"` // required for postgres
	RedisAddr   string `koanf:"redis_addr"`   // host:port or redis:// URL, required for redis
	RedisPrefix string `koanf:"redis_prefix"` // key namespace (default: passage)
}

type TokenConfig struct {
	Alg        string        `koanf:"alg"`         // HS256 or EdDSA (default: HS256)
	SecretPath string        `koanf:"secret_path"` // HS256 secret, created if missing
	KeyPath    string        `koanf:"key_path"`    // EdDSA PEM key, created if missing
	TTL        time.Duration `koanf:"ttl"`
}

type HashingConfig struct {
	PepperPath       string `koanf:"pepper_path"`
	ArgonMemory      uint32 `koanf:"argon_memory"` // KiB
	ArgonIterations  uint32 `koanf:"argon_iterations"`
	ArgonParallelism uint8  `koanf:"argon_parallelism"`
	SecretCost       int    `koanf:"secret_cost"` // bcrypt cost for slugs and nonces
}

type AccountsConfig struct {
	MaxLoginAttempts      int           `koanf:"max_login_attempts"`
	LockoutWindow         time.Duration `koanf:"lockout_window"`
	VerificationTTL       time.Duration `koanf:"verification_ttl"`
	ResetTTL              time.Duration `koanf:"reset_ttl"`
	RevokeSessionsOnReset bool          `koanf:"revoke_sessions_on_reset"`
}

type Config struct {
	Issuer   string `koanf:"issuer"`
	HTTPAddr string `koanf:"http_addr"`

	Store    StoreConfig    `koanf:"store"`
	Token    TokenConfig    `koanf:"token"`
	Hashing  HashingConfig  `koanf:"hashing"`
	Accounts AccountsConfig `koanf:"accounts"`
	SMTP     mail.Config    `koanf:"smtp"`

	RateLimits httpapi.Limits `koanf:"rate_limits"`

	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers name the client. Empty means the TCP peer is used.
	TrustedProxies []string `koanf:"trusted_proxies"`

	Env       string `koanf:"env"`        // dev, staging, prod (default: dev)
	LogLevel  string `koanf:"log_level"`  // debug, info, warn, error (default: info)
	LogFormat string `koanf:"log_format"` // json, text (default: json)

	SweepInterval       time.Duration `koanf:"sweep_interval"`
	ShutdownGracePeriod time.Duration `koanf:"shutdown_grace_period"`
}

// LoadConfig reads the environment, falling back to defaults.
func LoadConfig() Config {
	defaults := service.DefaultConfig()

	return Config{
		Issuer:   getEnvOrDefault("PASSAGE_ISSUER", defaults.Issuer),
		HTTPAddr: getEnvOrDefault("PASSAGE_HTTP_ADDR", ":8080"),
		Store: StoreConfig{
			Driver:      getEnvOrDefault("PASSAGE_STORE_DRIVER", "sqlite"),
			SQLitePath:  getEnvOrDefault("PASSAGE_SQLITE_PATH", "passage.db"),
			PostgresURL: os.Getenv("PASSAGE_POSTGRES_URL"),
			RedisAddr:   os.Getenv("PASSAGE_REDIS_ADDR"),
			RedisPrefix: getEnvOrDefault("PASSAGE_REDIS_PREFIX", "passage"),
		},
		Token: TokenConfig{
			Alg:        getEnvOrDefault("PASSAGE_TOKEN_ALG", "HS256"),
			SecretPath: getEnvOrDefault("PASSAGE_TOKEN_SECRET_PATH", "token_secret"),
			KeyPath:    getEnvOrDefault("PASSAGE_TOKEN_KEY_PATH", "token_key.pem"),
			TTL:        getEnvDurationOrDefault("PASSAGE_TOKEN_TTL", defaults.TokenTTL),
		},
		Hashing: HashingConfig{
			PepperPath:       getEnvOrDefault("PASSAGE_PEPPER_PATH", "pepper"),
			ArgonMemory:      uint32(getEnvIntOrDefault("PASSAGE_ARGON_MEMORY", int(cryptox.DefaultPasswordParams.Memory))),
			ArgonIterations:  uint32(getEnvIntOrDefault("PASSAGE_ARGON_ITERATIONS", int(cryptox.DefaultPasswordParams.Iterations))),
			ArgonParallelism: uint8(getEnvIntOrDefault("PASSAGE_ARGON_PARALLELISM", int(cryptox.DefaultPasswordParams.Parallelism))),
			SecretCost:       getEnvIntOrDefault("PASSAGE_SECRET_COST", cryptox.DefaultSecretCost),
		},
		Accounts: AccountsConfig{
			MaxLoginAttempts:      getEnvIntOrDefault("PASSAGE_MAX_LOGIN_ATTEMPTS", defaults.MaxLoginAttempts),
			LockoutWindow:         getEnvDurationOrDefault("PASSAGE_LOCKOUT_WINDOW", defaults.LockoutWindow),
			VerificationTTL:       getEnvDurationOrDefault("PASSAGE_VERIFICATION_TTL", defaults.VerificationTTL),
			ResetTTL:              getEnvDurationOrDefault("PASSAGE_RESET_TTL", defaults.ResetTTL),
			RevokeSessionsOnReset: getEnvBoolOrDefault("PASSAGE_REVOKE_SESSIONS_ON_RESET", defaults.RevokeSessionsOnReset),
		},
		SMTP: mail.Config{
			Host:     os.Getenv("PASSAGE_SMTP_HOST"),
			Port:     getEnvIntOrDefault("PASSAGE_SMTP_PORT", 587),
			Username: os.Getenv("PASSAGE_SMTP_USERNAME"),
			Password: os.Getenv("PASSAGE_SMTP_PASSWORD"),
			From:     getEnvOrDefault("PASSAGE_SMTP_FROM", "no-reply@localhost"),
			BaseURL:  getEnvOrDefault("PASSAGE_PUBLIC_URL", "http://localhost:8080"),
		},
		RateLimits:          httpapi.DefaultLimits(),
		TrustedProxies:      getEnvListOrDefault("PASSAGE_TRUSTED_PROXIES", nil),
		Env:                 getEnvOrDefault("PASSAGE_ENV", "dev"),
		LogLevel:            getEnvOrDefault("PASSAGE_LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("PASSAGE_LOG_FORMAT", "json"),
		SweepInterval:       getEnvDurationOrDefault("PASSAGE_SWEEP_INTERVAL", time.Hour),
		ShutdownGracePeriod: getEnvDurationOrDefault("PASSAGE_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Load layers an optional YAML file and any flags the user actually set
// over the environment. Flag names use dashes where keys use underscores,
// so --store.sqlite-path sets store.sqlite_path.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := LoadConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return cfg, oops.Code("CONFIG_INVALID").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects combinations the application cannot start with.
func (c Config) Validate() error {
	errs := oops.Code("CONFIG_INVALID")

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errs.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.PostgresURL == "" {
			return errs.Errorf("store.postgres_url is required for the postgres driver")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return errs.Errorf("store.redis_addr is required for the redis driver")
		}
	default:
		return errs.With("driver", c.Store.Driver).Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch strings.ToUpper(c.Token.Alg) {
	case "HS256", "EDDSA":
	default:
		return errs.With("alg", c.Token.Alg).Errorf("unsupported token algorithm %q", c.Token.Alg)
	}

	if c.Accounts.MaxLoginAttempts < 1 {
		return errs.Errorf("accounts.max_login_attempts must be at least 1")
	}

	if _, err := c.Proxies(); err != nil {
		return errs.Wrap(err)
	}
	return nil
}

// Proxies parses TrustedProxies.
func (c Config) Proxies() (httpx.TrustedProxies, error) {
	return httpx.ParseTrustedProxies(c.TrustedProxies)
}

// EngineConfig is the explicit configuration handed to the engine.
func (c Config) EngineConfig() service.Config {
	cfg := service.DefaultConfig()
	cfg.Issuer = c.Issuer
	cfg.MaxLoginAttempts = c.Accounts.MaxLoginAttempts
	cfg.LockoutWindow = c.Accounts.LockoutWindow
	cfg.TokenTTL = c.Token.TTL
	cfg.VerificationTTL = c.Accounts.VerificationTTL
	cfg.ResetTTL = c.Accounts.ResetTTL
	cfg.RevokeSessionsOnReset = c.Accounts.RevokeSessionsOnReset
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvListOrDefault splits a comma-separated value.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
