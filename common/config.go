package common

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"
)

type Config struct {
	ListenAddr    string `json:"listen_addr"`
	AppURL        string `json:"app_url"`
	DatabaseURL   string `json:"database_url"`
	DatabaseDebug bool   `json:"database_debug"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisPrefix   string `json:"redis_prefix"`
	MetricsPrefix string `json:"metrics_prefix"`
	// MetricsToken, when set, is required as a bearer token on /metrics.
	MetricsToken  string `json:"metrics_token"`

	// DatabaseMaxConns caps open connections; 0 keeps the driver default.
	DatabaseMaxConns int `json:"database_max_conns"`

	StripeSecretKey     string `json:"stripe_secret_key"`
	StripeWebhookSecret string `json:"stripe_webhook_secret"`

	// BaselineTier is the plan a community falls back to when its subscription is deleted.
	BaselineTier        string `json:"baseline_tier"`
	TrialCooldownDays   int    `json:"trial_cooldown_days"`
	EventLedgerTTLHours int    `json:"event_ledger_ttl_hours"`
	EventLockTTLSeconds int    `json:"event_lock_ttl_seconds"`
}

func LoadConfig(dir string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = DEFAULT_CONFIG_FILE
	}

	if !strings.HasPrefix(configPath, "/") && dir != "" {
		configPath = path.Join(dir, configPath)
	}

	if _, err := os.Stat(configPath); err == nil {
		fileCfg, err := LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg.applyConfigOverrides(fileCfg)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Config{}
	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          DEFAULT_LISTEN_ADDR,
		AppURL:              DEFAULT_APP_URL,
		RedisAddr:           DEFAULT_REDIS_ADDR,
		RedisPassword:       DEFAULT_REDIS_PASSWORD,
		RedisPrefix:         DEFAULT_REDIS_PREFIX,
		MetricsPrefix:       DEFAULT_METRICS_PREFIX,
		BaselineTier:        DEFAULT_BASELINE_TIER,
		TrialCooldownDays:   DEFAULT_TRIAL_COOLDOWN_DAYS,
		EventLedgerTTLHours: DEFAULT_EVENT_LEDGER_TTL_HOURS,
		EventLockTTLSeconds: DEFAULT_EVENT_LOCK_TTL_SECONDS,
	}
}

// Validate checks the settings the webhook endpoint cannot run without.
func (c *Config) Validate() error {
	if c.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.BaselineTier == "" {
		return fmt.Errorf("baseline tier must not be empty")
	}
	if c.DatabaseMaxConns < 0 {
		return fmt.Errorf("database max conns must not be negative: %d", c.DatabaseMaxConns)
	}
	if c.TrialCooldownDays < 0 {
		return fmt.Errorf("trial cooldown days must not be negative: %d", c.TrialCooldownDays)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("APP_URL"); v != "" {
		c.AppURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("DB_DEBUG"); v != "" {
		c.DatabaseDebug = ParseBool(v)
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		c.DatabaseMaxConns = atoiOrDefault(v, c.DatabaseMaxConns)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("REDIS_PREFIX"); v != "" {
		c.RedisPrefix = v
	}
	if v := os.Getenv("METRICS_PREFIX"); v != "" {
		c.MetricsPrefix = v
	}
	if v := os.Getenv("METRICS_TOKEN"); v != "" {
		c.MetricsToken = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		c.StripeSecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		c.StripeWebhookSecret = v
	}
	if v := os.Getenv("BASELINE_TIER"); v != "" {
		c.BaselineTier = v
	}
	if v := os.Getenv("TRIAL_COOLDOWN_DAYS"); v != "" {
		c.TrialCooldownDays = atoiOrDefault(v, c.TrialCooldownDays)
	}
	if v := os.Getenv("EVENT_LEDGER_TTL_HOURS"); v != "" {
		c.EventLedgerTTLHours = atoiOrDefault(v, c.EventLedgerTTLHours)
	}
	if v := os.Getenv("EVENT_LOCK_TTL_SECONDS"); v != "" {
		c.EventLockTTLSeconds = atoiOrDefault(v, c.EventLockTTLSeconds)
	}
}

func (c *Config) applyConfigOverrides(cfg *Config) {
	if cfg.ListenAddr != "" {
		c.ListenAddr = cfg.ListenAddr
	}
	if cfg.AppURL != "" {
		c.AppURL = cfg.AppURL
	}
	if cfg.DatabaseURL != "" {
		c.DatabaseURL = cfg.DatabaseURL
	}
	c.DatabaseDebug = cfg.DatabaseDebug
	if cfg.DatabaseMaxConns != 0 {
		c.DatabaseMaxConns = cfg.DatabaseMaxConns
	}
	if cfg.RedisAddr != "" {
		c.RedisAddr = cfg.RedisAddr
	}
	if cfg.RedisPassword != "" {
		c.RedisPassword = cfg.RedisPassword
	}
	if cfg.RedisPrefix != "" {
		c.RedisPrefix = cfg.RedisPrefix
	}
	if cfg.MetricsPrefix != "" {
		c.MetricsPrefix = cfg.MetricsPrefix
	}
	if cfg.MetricsToken != "" {
		c.MetricsToken = cfg.MetricsToken
	}
	if cfg.StripeSecretKey != "" {
		c.StripeSecretKey = cfg.StripeSecretKey
	}
	if cfg.StripeWebhookSecret != "" {
		c.StripeWebhookSecret = cfg.StripeWebhookSecret
	}
	if cfg.BaselineTier != "" {
		c.BaselineTier = cfg.BaselineTier
	}
	if cfg.TrialCooldownDays != 0 {
		c.TrialCooldownDays = cfg.TrialCooldownDays
	}
	if cfg.EventLedgerTTLHours != 0 {
		c.EventLedgerTTLHours = cfg.EventLedgerTTLHours
	}
	if cfg.EventLockTTLSeconds != 0 {
		c.EventLockTTLSeconds = cfg.EventLockTTLSeconds
	}
}

func atoiOrDefault(s string, def int) int {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil {
		return def
	}
	return n
}

func (c *Config) TrialCooldown() time.Duration {
	return time.Duration(c.TrialCooldownDays) * 24 * time.Hour
}

func (c *Config) EventLedgerTTL() time.Duration {
	return time.Duration(c.EventLedgerTTLHours) * time.Hour
}

func (c *Config) EventLockTTL() time.Duration {
	return time.Duration(c.EventLockTTLSeconds) * time.Second
}

// BillingLink is the in-app deep link to a community's billing page.
func BillingLink(communityID string) string {
	return "/communities/" + communityID + "/admin/billing"
}

// AbsoluteURL joins an in-app link onto the public app URL, for redirects out of Stripe.
func (c *Config) AbsoluteURL(link string) string {
	return strings.TrimRight(c.AppURL, "/") + link
}
