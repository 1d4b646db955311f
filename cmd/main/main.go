package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/secsift/secsift/src/breaker"
	"github.com/secsift/secsift/src/cache"
	"github.com/secsift/secsift/src/chunker"
	"github.com/secsift/secsift/src/config"
	"github.com/secsift/secsift/src/dispatch"
	"github.com/secsift/secsift/src/handlers"
	"github.com/secsift/secsift/src/history"
	"github.com/secsift/secsift/src/planner"
	"github.com/secsift/secsift/src/profile"
	"github.com/secsift/secsift/src/provider"
	"github.com/secsift/secsift/src/ratelimit"
	"github.com/secsift/secsift/src/retry"
	"github.com/secsift/secsift/src/tokens"
)

func init() {

	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ Loaded .env file")
	}
}

func main() {

	if os.Getenv("LLM_API_KEY") == "" {
		log.Fatal("❌ LLM_API_KEY not set in environment or .env file")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("✓ Config loaded successfully")

	redisCache, err := cache.NewRedisCache(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer redisCache.Close()
	log.Printf("✓ Redis connected")

	registry := profile.NewRegistry()
	counter := tokens.NewCounter(cfg.Provider.Model)
	chunkPlanner := planner.NewPlanner(registry, counter, cfg.Planner.QuotaUtilization, cfg.Planner.SafetyMargin)
	dataChunker := chunker.NewChunker(counter)
	log.Printf("✓ Chunk planner ready (utilization %.0f%%, margin %.1f%%)",
		cfg.Planner.QuotaUtilization*100, cfg.Planner.SafetyMargin*100)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Limiter.RequestsPerMinute,
		TokensPerMinute:   cfg.Limiter.TokensPerMinute,
		MaxConcurrent:     cfg.Limiter.MaxConcurrent,
		NearLimitWait:     cfg.Limiter.NearLimitWait,
	}, nil)
	defer limiter.Stop()
	log.Printf("✓ Rate limiter ready (%d RPM, %d TPM, %d concurrent)",
		cfg.Limiter.RequestsPerMinute, cfg.Limiter.TokensPerMinute, cfg.Limiter.MaxConcurrent)

	retryPolicy := retry.NewPolicy(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)
	breakers := breaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout, nil)

	llmClient := provider.NewClient(&cfg.Provider)
	log.Printf("✓ LLM client ready: %s", cfg.Provider.Model)
	if len(cfg.Provider.FallbackModels) > 0 {
		log.Printf("  fallbacks: %s", strings.Join(cfg.Provider.FallbackModels, ", "))
	}

	dispatcher := dispatch.NewDispatcher(llmClient, limiter, retryPolicy, breakers, cfg.Dispatch.WallClockBudget, nil)

	historyStore := history.NewStore(redisCache.GetClient())

	analyzeHandler := handlers.NewAnalyzeHandler(
		chunkPlanner,
		dataChunker,
		dispatcher,
		redisCache,
		historyStore,
		cfg.Planner.OverlapTokens,
		cfg.Provider.FallbackModels,
	)
	historyHandler := handlers.NewHistoryHandler(historyStore)
	log.Printf("✓ Analysis pipeline initialized")

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.Use(corsMiddleware())
	if cfg.Server.MaxBodyBytes > 0 {
		r.Use(bodyLimit(cfg.Server.MaxBodyBytes))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", analyzeHandler.HealthCheck)
		v1.POST("/analyze", analyzeHandler.HandleAnalyze)
		v1.GET("/analyses", historyHandler.ListAnalyses)
		v1.GET("/analyses/:run_id", historyHandler.GetAnalysis)
		v1.DELETE("/analyses/:run_id", historyHandler.DeleteAnalysis)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	log.Printf("🚀 SecSift engine running on port %s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

// bodyLimit rejects oversized raw requests before chunking ever begins.
func bodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func corsMiddleware() gin.HandlerFunc {
	// Get allowed origins from environment variable
	// Default to localhost for development if not set
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	var allowedOrigins []string

	if allowedOriginsEnv != "" {
		allowedOrigins = strings.Split(allowedOriginsEnv, ",")
		for i := range allowedOrigins {
			allowedOrigins[i] = strings.TrimSpace(allowedOrigins[i])
		}
	} else {
		allowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:3001",
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Allow requests without Origin header (e.g., health checks, curl)
		if origin == "" {
			c.Next()
			return
		}

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				allowed = true
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		if !allowed {
			c.AbortWithStatus(403)
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
