package routes

import (
	"ratelimit-service/internal/api/handlers"
	"ratelimit-service/internal/api/middleware"
	"ratelimit-service/internal/services"
	"ratelimit-service/pkg/ratelimit"
	"ratelimit-service/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
)

// Deps carries everything the route table wires together.
type Deps struct {
	Limiter     *ratelimit.RateLimiter
	RuleManager *services.RuleManager
	Violations  *ratelimit.RedisViolationSink
	RedisClient *redis.Client
	DB          *mongo.Database // nil when running without Mongo
	Registry    *prometheus.Registry
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	limitHandler := handlers.NewLimitHandler(deps.Limiter)
	ruleHandler := handlers.NewRuleHandler(deps.RuleManager)
	accessHandler := handlers.NewAccessHandler(deps.RuleManager)
	violationHandler := handlers.NewViolationHandler(deps.Violations)
	healthHandler := handlers.NewHealthHandler(deps.RedisClient, deps.DB)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")

	api.GET("/health", healthHandler.Health)

	// the decision surface consumed by gateways and middleware callers
	limit := api.Group("/ratelimit")
	{
		limit.POST("/check", limitHandler.Check)
		limit.GET("/status", limitHandler.Status)
		limit.POST("/reset", limitHandler.Reset)
	}

	// rule management; changes are visible to the next check
	rules := api.Group("/rules")
	{
		rules.GET("", ruleHandler.ListRules)
		rules.POST("", ruleHandler.CreateRule)
		rules.GET("/:id", ruleHandler.GetRule)
		rules.PUT("/:id", ruleHandler.UpdateRule)
		rules.DELETE("/:id", ruleHandler.DeleteRule)
	}

	access := api.Group("/access")
	{
		access.POST("/whitelist", accessHandler.Add(ratelimit.Whitelist))
		access.DELETE("/whitelist", accessHandler.Remove(ratelimit.Whitelist))
		access.POST("/blacklist", accessHandler.Add(ratelimit.Blacklist))
		access.DELETE("/blacklist", accessHandler.Remove(ratelimit.Blacklist))
	}

	api.GET("/violations", violationHandler.Recent)

	// the admin surface guards itself with the limiter it manages
	admin := router.Group("/admin")
	admin.Use(middleware.RateLimit(deps.Limiter))
	{
		admin.GET("/rules", ruleHandler.ListRules)
		admin.GET("/violations", violationHandler.Recent)
	}
}
