package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/retailops/notifier/internal/platform/env"
)

// Config holds the runtime configuration of the notifier processes.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
	NATSURL    string `mapstructure:"nats_url" validate:"required"`

	NATSConnectTimeout time.Duration `mapstructure:"nats_connect_timeout" validate:"gt=0"`
	PushChannel        string        `mapstructure:"push_channel" validate:"oneof=nats redis"`
	RedisURL           string        `mapstructure:"redis_url"`

	BackendURL     string        `mapstructure:"backend_url" validate:"required,url"`
	BackendToken   string        `mapstructure:"backend_token"`
	BackendTimeout time.Duration `mapstructure:"backend_timeout" validate:"gt=0"`

	Store       string `mapstructure:"store" validate:"oneof=memory sqlite postgres redis"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	DatabaseURL string `mapstructure:"database_url"`

	JWTSecret      string        `mapstructure:"jwt_secret" validate:"required,min=8"`
	JWTTTL         time.Duration `mapstructure:"jwt_ttl" validate:"gt=0"`
	AdminTokenHash string        `mapstructure:"admin_token_hash"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`

	BadgePollInterval   time.Duration `mapstructure:"badge_poll_interval" validate:"gt=0"`
	TrackerPollInterval time.Duration `mapstructure:"tracker_poll_interval" validate:"gt=0"`
	TrackerDebounce     time.Duration `mapstructure:"tracker_debounce" validate:"gte=0"`
	ToastTTL            time.Duration `mapstructure:"toast_ttl" validate:"gt=0"`
	ViewPollInterval    time.Duration `mapstructure:"view_poll_interval" validate:"gt=0"`
	ViewDebounce        time.Duration `mapstructure:"view_debounce" validate:"gte=0"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" validate:"gt=0"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" validate:"gt=0"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", env.DefaultListenAddr)
	v.SetDefault("nats_url", env.DefaultNATSURL)
	v.SetDefault("nats_connect_timeout", 90*time.Second)
	v.SetDefault("push_channel", "nats")
	v.SetDefault("redis_url", env.DefaultRedisURL)
	v.SetDefault("backend_url", env.DefaultBackendURL)
	v.SetDefault("backend_token", "")
	v.SetDefault("backend_timeout", 10*time.Second)
	v.SetDefault("store", "sqlite")
	v.SetDefault("sqlite_path", env.DefaultSQLitePath)
	v.SetDefault("database_url", env.DefaultDatabaseURL)
	v.SetDefault("jwt_secret", "dev-insecure-change-me")
	v.SetDefault("jwt_ttl", 12*time.Hour)
	v.SetDefault("admin_token_hash", "")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("badge_poll_interval", 60*time.Second)
	v.SetDefault("tracker_poll_interval", 45*time.Second)
	v.SetDefault("tracker_debounce", 400*time.Millisecond)
	v.SetDefault("toast_ttl", 4500*time.Millisecond)
	v.SetDefault("view_poll_interval", 30*time.Second)
	v.SetDefault("view_debounce", 400*time.Millisecond)
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("shutdown_timeout", 10*time.Second)
}

// Load reads .env (if present), an optional YAML file and environment
// variables, in increasing precedence. Environment keys are the upper-case
// field names, e.g. BADGE_POLL_INTERVAL=30s.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	if c.Store == "postgres" && strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("invalid config: database_url is required for the postgres store")
	}
	if (c.Store == "redis" || c.PushChannel == "redis") && strings.TrimSpace(c.RedisURL) == "" {
		return errors.New("invalid config: redis_url is required when redis is used")
	}
	if c.Store == "sqlite" && strings.TrimSpace(c.SQLitePath) == "" {
		return errors.New("invalid config: sqlite_path is required for the sqlite store")
	}
	return nil
}

// splitOrigins accepts both a YAML list and a comma separated env value.
func splitOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
