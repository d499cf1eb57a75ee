package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"commune-backend/common"
	"commune-backend/db"
	"commune-backend/metrics"
	"commune-backend/middleware"
	"commune-backend/sections"
	"commune-backend/sections/billing"
	"commune-backend/sections/common/auth"
	"commune-backend/sections/health"
	"commune-backend/sections/models"
	"commune-backend/services"
	"commune-backend/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func main() {
	ctx := context.Background()

	level := slog.LevelInfo
	if common.ParseBool(getEnv("DEBUG", "")) {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// Load environment variables
	if _, err := os.Stat(common.PRIVATE_CREDENTIALS_DOTENV); err == nil {
		if err := godotenv.Load(common.PRIVATE_CREDENTIALS_DOTENV); err != nil {
			slog.Error("Failed to load .env.private file", "error", err)
			os.Exit(1)
		}
	}

	cfgDir := getEnv("CONFIG_DIR", common.DEFAULT_CONFIG_DIR)

	cfg, err := common.LoadConfig(cfgDir)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	tiers, err := common.LoadTiers(cfgDir)
	if err != nil {
		slog.Error("Failed to load tiers", "error", err)
		os.Exit(1)
	}
	if common.GetTier(tiers, cfg.BaselineTier) == nil {
		slog.Warn("Baseline tier is not listed in tiers", "tier_id", cfg.BaselineTier)
	}
	slog.Info("Tiers loaded", "count", len(tiers))

	database, err := db.Connect(ctx, &db.Config{
		DatabaseURL:     cfg.DatabaseURL,
		Debug:           cfg.DatabaseDebug,
		MaxOpenConns:    cfg.DatabaseMaxConns,
		MaxIdleConns:    cfg.DatabaseMaxConns / 2,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Setup(ctx, models.All()...); err != nil {
		slog.Error("Failed to set up database", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it webhook events are not de-duplicated
	var redisClient *storage.RedisClient
	if cfg.RedisAddr != "" {
		redisClient, err = storage.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, 0, cfg.RedisPrefix)
		if err != nil {
			slog.Error("Failed to initialize Redis client", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	} else {
		slog.Info("No Redis address set (REDIS_ADDR not defined), webhook de-duplication disabled")
	}

	if cfg.StripeSecretKey == "" {
		slog.Warn("STRIPE_SECRET_KEY not set, Stripe API calls will fail")
	}
	stripeSvc := services.NewStripeService(tiers, cfg.StripeSecretKey, cfg.StripeWebhookSecret)

	jwtManager, err := auth.NewJWTManagerFromEnv()
	if err != nil {
		slog.Error("Failed to initialize JWT manager", "error", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer, cfg.MetricsPrefix)

	deps := sections.NewDependencies(cfg, database, redisClient, stripeSvc, tiers, webhookMetrics)

	// Initialize Gin router
	r := gin.Default()

	env := getEnv("APP_ENV", "production")
	trustedProxies := getEnv("TRUSTED_PROXIES", "")
	corsOrigins := getEnv("CORS_ORIGINS", "")

	if env != "development" && trustedProxies == "" {
		slog.Error("In production mode, TRUSTED_PROXIES must be set")
		os.Exit(1)
	} else if trustedProxies != "" {
		slog.Info("Setting trusted proxies", "proxies", trustedProxies)
		proxies := strings.Split(trustedProxies, ",")
		if err := r.SetTrustedProxies(proxies); err != nil {
			slog.Error("Failed to set trusted proxies", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("No trusted proxies set (TRUSTED_PROXIES not defined)")
	}

	// Configure CORS
	corsConfig := cors.DefaultConfig()

	if env != "development" && corsOrigins == "" {
		slog.Error("In production mode, CORS_ORIGINS must be set")
		os.Exit(1)
	} else if corsOrigins != "" {
		slog.Info("CORS origins set from CORS_ORIGINS")
		corsConfig.AllowOrigins = strings.Split(corsOrigins, ",")
	} else {
		slog.Warn("Using default origin function in non-production mode (CORS_ORIGINS not defined)")
		corsConfig.AllowOriginFunc = func(origin string) bool {
			return origin == "http://localhost" || strings.HasPrefix(origin, "http://localhost:")
		}
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	healthChecks := map[string]health.Pinger{"database": database}
	if redisClient != nil {
		healthChecks["redis"] = redisClient
	}
	health.RegisterRoutes(r, healthChecks)

	if cfg.MetricsToken != "" {
		r.GET("/metrics", middleware.MetricsTokenAuthMiddleware(cfg.MetricsToken), gin.WrapH(promhttp.Handler()))
	} else {
		slog.Warn("Metrics endpoint is unauthenticated (METRICS_TOKEN not defined)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	billing.RegisterRoutes(r, deps, jwtManager)

	slog.Info("Server starting", "addr", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
