package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TalentGate/candidate-session-service/internal/config"
	"github.com/TalentGate/candidate-session-service/internal/engine"
	"github.com/TalentGate/candidate-session-service/internal/events"
	"github.com/TalentGate/candidate-session-service/internal/gateway"
	"github.com/TalentGate/candidate-session-service/internal/handlers"
	"github.com/TalentGate/candidate-session-service/internal/store"
	"github.com/TalentGate/candidate-session-service/internal/utils"
	"github.com/TalentGate/candidate-session-service/internal/validator"
	"github.com/TalentGate/candidate-session-service/pkg"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		logger = utils.NewDefaultLogger()
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger = utils.NewDevelopmentLogger()
	}

	kv, err := buildKV(cfg, logger)
	if err != nil {
		logger.LogError(err, "Failed to initialize answer store backend", "backend", cfg.StoreBackend)
		os.Exit(1)
	}

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		logger.LogError(err, "Failed to initialize event publisher")
		os.Exit(1)
	}
	defer publisher.Close()

	gatewayClient := gateway.NewClient(
		cfg.GatewayBaseURL,
		time.Duration(cfg.GatewayTimeoutSeconds)*time.Second,
		logger,
	)

	sessionValidator := validator.New()

	manager := engine.NewManager(engine.Dependencies{
		Store:             store.NewAnswerStore(kv),
		Gateway:           gatewayClient,
		Events:            publisher,
		Logger:            logger,
		Validator:         sessionValidator,
		AnnouncementDelay: time.Duration(cfg.AnnouncementSeconds) * time.Second,
	})

	router := gin.New()
	router.Use(utils.LoggerMiddleware(logger), gin.Recovery())

	handlerManager := handlers.NewHandlerManager(manager, sessionValidator, logger)
	handlerManager.SetupRoutes(router)

	logger.Info("Starting candidate session service",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"store_backend", cfg.StoreBackend)

	if err := router.Run(":" + cfg.Port); err != nil {
		logger.LogError(err, "Server stopped")
		os.Exit(1)
	}
}

func buildKV(cfg *config.Config, logger utils.Logger) (store.KV, error) {
	switch cfg.StoreBackend {
	case "redis":
		client, err := pkg.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		return store.NewRedisKV(client, time.Duration(cfg.StoreTTLHours)*time.Hour), nil
	case "postgres":
		db, err := pkg.InitDatabase(cfg)
		if err != nil {
			return nil, err
		}
		return store.NewGormKV(db)
	case "memory":
		logger.Warn("Using in-memory answer store; progress will not survive a restart")
		return store.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func buildPublisher(cfg *config.Config, logger utils.Logger) (events.EventPublisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("No Kafka brokers configured; session events will not be delivered")
		return &events.NoopEventPublisher{Logger: utils.ToSlog(logger)}, nil
	}
	return events.NewKafkaEventPublisher(events.PublisherConfig{
		KafkaBrokers: cfg.KafkaBrokers,
		TopicName:    cfg.SessionEventsTopic,
		Logger:       utils.ToSlog(logger),
	})
}
