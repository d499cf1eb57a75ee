package common

const (
	PRIVATE_CREDENTIALS_DOTENV = ".env.private"
	DEFAULT_CONFIG_DIR         = ".config/"
	DEFAULT_CONFIG_FILE        = "config.json"
	DEFAULT_TIERS_FILE         = "tiers.json"

	DEFAULT_REDIS_ADDR     = ""
	DEFAULT_REDIS_PASSWORD = ""
	DEFAULT_REDIS_PREFIX   = "commune:"
	DEFAULT_LISTEN_ADDR    = ":4000"
	DEFAULT_APP_URL        = "http://localhost:3000"
	DEFAULT_METRICS_PREFIX = "commune"

	DEFAULT_BASELINE_TIER          = "free"
	DEFAULT_TRIAL_COOLDOWN_DAYS    = 14
	DEFAULT_EVENT_LEDGER_TTL_HOURS = 72
	DEFAULT_EVENT_LOCK_TTL_SECONDS = 120

	// Stripe webhook bodies are small; anything larger is rejected before verification.
	STRIPE_WEBHOOK_BODY_LIMIT = 1024 * 1024
	STRIPE_SIGNATURE_HEADER   = "Stripe-Signature"
)
