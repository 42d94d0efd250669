package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/crosslink/backend/internal/api/handlers"
	"github.com/crosslink/backend/internal/cache/redis"
	"github.com/crosslink/backend/internal/embedding"
	"github.com/crosslink/backend/internal/graph/neo4j"
	"github.com/crosslink/backend/internal/linking"
	"github.com/crosslink/backend/internal/metrics"
	"github.com/crosslink/backend/internal/middleware/ratelimit"
	"github.com/crosslink/backend/internal/middleware/security"
	"github.com/crosslink/backend/internal/middleware/validation"
	"github.com/crosslink/backend/internal/storage/sqlite"
	"github.com/crosslink/backend/internal/vector/milvus"
	"github.com/crosslink/backend/pkg/config"
	appLogger "github.com/crosslink/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Crosslink API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var hotTier embedding.HotTier
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without hot embedding cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			hotTier = redisClient
		}
	}

	var durableTier embedding.DurableTier
	if cfg.Milvus.Enabled {
		milvusStore, err := milvus.NewStore(cfg.Milvus.Endpoint, cfg.Milvus.CollectionName, cfg.Embedding.Dim)
		if err != nil {
			appLogger.Warn("Milvus unavailable, continuing without durable embedding store", zap.Error(err))
		} else {
			defer milvusStore.Close()
			if err := milvusStore.EnsureCollection(context.Background()); err != nil {
				appLogger.Fatal("Failed to ensure embedding collection", zap.Error(err))
			}
			durableTier = milvusStore
		}
	}

	var graph linking.LinkGraph
	var graphReader handlers.LinkGraphReader
	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, continuing without link graph", zap.Error(err))
		} else {
			defer neo4jClient.Close(context.Background())
			graph = neo4jClient
			graphReader = neo4jClient
		}
	}

	provider := embedding.NewProvider(
		cfg.Embedding.APIKey,
		cfg.Embedding.Model,
		time.Duration(cfg.Embedding.TimeoutSec)*time.Second,
	)
	embeddingCache := embedding.NewCache(
		provider,
		hotTier,
		durableTier,
		cfg.Embedding.Dim,
		time.Duration(cfg.Redis.TTLHours)*time.Hour,
	)

	weights := linking.Weights{
		SemanticMax:  cfg.Linking.Weights.SemanticMax,
		TopicPoints:  cfg.Linking.Weights.TopicPoints,
		TopicMax:     cfg.Linking.Weights.TopicMax,
		KeywordBonus: cfg.Linking.Weights.KeywordBonus,
	}
	genOptions := linking.Options{
		TopK:                   cfg.Linking.TopK,
		MinSimilarity:          cfg.Linking.MinSimilarity,
		MinRelevance:           cfg.Linking.MinRelevance,
		MaxSuggestions:         cfg.Linking.MaxSuggestions,
		BidirectionalThreshold: cfg.Linking.BidirectionalThreshold,
		OptimalRange:           [2]int{cfg.Linking.OptimalLinksMin, cfg.Linking.OptimalLinksMax},
		URLPrefix:              cfg.Linking.URLPrefix,
	}

	generator := linking.NewGenerator(embeddingCache, sqliteClient, weights, genOptions)
	machine := linking.NewMachine(sqliteClient, sqliteClient, graph, cfg.Linking.URLPrefix)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxContentSize: cfg.Server.BodyLimit,
		Logger:         appLogger.GetLogger(),
	}))

	articleHandler := handlers.NewArticleHandler(sqliteClient, embeddingCache, graph)
	suggestionHandler := handlers.NewSuggestionHandler(sqliteClient, generator, machine, graphReader, genOptions.OptimalRange)
	wsHandler := handlers.NewWebSocketHandler(sqliteClient, func(progress func(stage string, done, total int)) *linking.Generator {
		opts := genOptions
		opts.Progress = progress
		return linking.NewGenerator(embeddingCache, sqliteClient, weights, opts)
	})

	api := app.Group("/api/v1")

	api.Post("/articles", articleHandler.UpsertArticle)
	api.Get("/articles", articleHandler.ListArticles)
	api.Get("/articles/:id", articleHandler.GetArticle)

	api.Post("/links/suggestions", suggestionHandler.GenerateSuggestions)
	api.Get("/links/suggestions", suggestionHandler.ListSuggestions)
	api.Post("/links/suggestions/:id/accept", suggestionHandler.AcceptSuggestion)
	api.Post("/links/suggestions/:id/reject", suggestionHandler.RejectSuggestion)
	api.Post("/links/suggestions/:id/unreject", suggestionHandler.UnrejectSuggestion)
	api.Get("/links/metrics/:articleID", suggestionHandler.GetLinkMetrics)
	api.Get("/links/orphans", suggestionHandler.GetOrphanReport)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/links/suggestions", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
