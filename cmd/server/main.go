package main

import (
	"context"
	"os"
	"strings"
	"time"

	"ratelimit-service/internal/api/routes"
	"ratelimit-service/internal/config"
	"ratelimit-service/internal/repository"
	"ratelimit-service/internal/services"
	"ratelimit-service/pkg/database"
	"ratelimit-service/pkg/ratelimit"
	"ratelimit-service/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	cfg := config.Load()
	logger := setupLogger(cfg.LogLevel)

	redisClient := redis.NewClient(cfg.Redis, logger)
	defer redisClient.Close()

	var db *mongo.Database
	var ruleRepo *repository.RuleRepository
	if cfg.MongoURI != "" {
		var err error
		db, err = database.Connect(cfg.MongoURI)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
		}
		defer database.Disconnect(db.Client())
		ruleRepo = repository.NewRuleRepository(db)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ratelimit.NewMetrics(registry)

	ruleService := ratelimit.NewRuleService()
	ruleManager := services.NewRuleManager(ruleRepo, ruleService, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ruleManager.Load(ctx); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("failed to load rule table")
	}
	cancel()

	violationSink := ratelimit.NewRedisViolationSink(redisClient.GetClient())
	violationLog := ratelimit.NewViolationLog(violationSink, logger, metrics)
	defer violationLog.Close()

	store := ratelimit.NewRedisCounterStore(redisClient.GetClient())
	limiter := ratelimit.NewRateLimiter(store, ruleService, violationLog, metrics, logger)

	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	routes.SetupRoutes(router, routes.Deps{
		Limiter:     limiter,
		RuleManager: ruleManager,
		Violations:  violationSink,
		RedisClient: redisClient,
		DB:          db,
		Registry:    registry,
	})

	logger.Info().Str("port", cfg.Port).Msg("server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func setupLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
	}

	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cfg
}
