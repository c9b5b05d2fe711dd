package main

import (
	"context"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"consultation-service/internal/bus"
	"consultation-service/internal/config"
	"consultation-service/internal/db"
	"consultation-service/internal/handlers"
	"consultation-service/internal/lifecycle"
	"consultation-service/internal/middleware"
	"consultation-service/internal/observability"
	"consultation-service/internal/rabbitmq"
	"consultation-service/internal/repositories"
	"consultation-service/internal/telemetry"
	"consultation-service/internal/ws"
)

const serviceName = "consultation-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Info().Str("mode", rabbitmq.Mode(publisher)).Msg("event publisher ready")

	audit := telemetry.NewAuditEmitter(publisher, "audit_log.consultations", serviceName, cfg.Environment)

	consultationRepo := repositories.NewConsultationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	statusBus := bus.NewStatusBus()
	hub := ws.NewHub()
	go ws.RunStatusRelay(ctx, statusBus, hub)

	controller := lifecycle.NewController(consultationRepo, statusBus, cfg.LifecycleTimeout())

	verifier := middleware.NewJWTVerifier(cfg.JWTSecret)
	consultationHandler := handlers.NewConsultationHandler(consultationRepo, messageRepo, controller, audit)
	consultationWS := ws.NewConsultationWebSocketHandler(hub, consultationRepo, messageRepo, verifier)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/consultations", authMiddleware, consultationHandler.ListConsultations)
	router.GET("/consultations/:consultation_id", authMiddleware, consultationHandler.GetConsultation)
	router.GET("/consultations/:consultation_id/messages", authMiddleware, consultationHandler.GetMessages)
	router.POST("/consultations/:consultation_id/start", authMiddleware, consultationHandler.StartConsultation)
	router.POST("/consultations/:consultation_id/complete", authMiddleware, consultationHandler.CompleteConsultation)

	router.GET("/ws/consultations/:consultation_id", consultationWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugEndpoints)

	log.Info().Str("addr", cfg.Addr()).Msg("consultation service listening")
	if err := router.Run(cfg.Addr()); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Str("service", serviceName).Logger()
}
