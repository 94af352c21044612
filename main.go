package main

import (
	"context"
	"errors"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Carl4WebDev/vet-user/internal/config"
	"github.com/Carl4WebDev/vet-user/internal/directory"
	"github.com/Carl4WebDev/vet-user/internal/handlers"
	"github.com/Carl4WebDev/vet-user/internal/identity"
	"github.com/Carl4WebDev/vet-user/internal/middleware"
	"github.com/Carl4WebDev/vet-user/internal/observability"
	"github.com/Carl4WebDev/vet-user/internal/rabbitmq"
	"github.com/Carl4WebDev/vet-user/internal/session"
	"github.com/Carl4WebDev/vet-user/internal/telemetry"
	"github.com/Carl4WebDev/vet-user/internal/transport"
	"github.com/Carl4WebDev/vet-user/internal/unread"
	"github.com/Carl4WebDev/vet-user/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))

	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.portal", "portal-chat-gateway", cfg.Environment)

	persister, err := unread.NewBboltPersister(cfg.DBFile)
	if err != nil {
		log.Fatalf("failed to open unread store: %v", err)
	}
	defer persister.Close()
	unreadStore := unread.NewStore(persister)

	auth := identity.NewAuthenticator(cfg.AuthSecret, "vet-portal", 0)
	resolver := identity.NewResolver(cfg.CredentialFile, auth)

	adapter := transport.NewWSAdapter(cfg.RealtimeURL, cfg.DialTimeout)
	directoryClient := directory.NewClient(cfg.APIBaseURL, cfg.DirectoryTimeout)
	hub := ws.NewHub()

	controller := session.NewController(adapter, directoryClient, unreadStore, resolver, hub)
	defer controller.Teardown()

	if err := controller.Init(ctx); err != nil {
		if errors.Is(err, identity.ErrNotAuthenticated) {
			log.Printf("no local identity found, session is not authenticated")
		} else {
			log.Printf("session init failed: %v", err)
		}
	}

	sessionHandler := handlers.NewSessionHandler(controller, unreadStore, auditEmitter)
	portalWS := ws.NewPortalWebSocketHandler(hub, auth)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("portal-chat-gateway"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(auth)

	router.GET("/session", authMiddleware, sessionHandler.GetSession)
	router.GET("/conversations", authMiddleware, sessionHandler.ListConversations)
	router.POST("/conversations/:peer_id/open", authMiddleware, sessionHandler.OpenConversation)
	router.GET("/messages", authMiddleware, sessionHandler.GetMessages)
	router.POST("/messages", authMiddleware, sessionHandler.PostMessage)
	router.GET("/unread", authMiddleware, sessionHandler.GetUnread)

	router.GET("/ws", portalWS.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
