package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"collabhub/internal/common"
	"collabhub/internal/di"
	"collabhub/internal/telemetry"

	"github.com/gorilla/mux"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	log.Println("Starting Chat Service...")

	app, cleanup, err := di.InitializeChatApp()
	if err != nil {
		log.Fatalf("Failed to initialize chat service: %v", err)
	}
	defer cleanup()
	cfg := app.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	// queued notifications are dispatched here so they reach this process's sockets
	consumeCtx, err := app.Consumer.Start(ctx, app.JetStream, cfg.NATS)
	if err != nil {
		log.Fatalf("Failed to start notification consumer: %v", err)
	}

	router := mux.NewRouter()
	router.Use(common.LoggingMiddleware, common.CORSMiddleware)
	ping := func(ctx context.Context) error { return app.Mongo.Client.Ping(ctx, nil) }
	router.HandleFunc("/health", common.HealthHandler(ping, app.Broker,
		common.TopicChatMessage, common.TopicNotification, common.TopicUserStatus,
	)).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(common.IdentityMiddleware(app.TokenParser))
	app.Chats.RegisterRoutes(api)
	app.Notifications.RegisterRoutes(api)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	grpcServer, healthServer := common.NewGRPCServer(app.TokenParser)
	lis, err := net.Listen("tcp", ":"+cfg.Server.ChatGRPCPort)
	if err != nil {
		log.Fatalf("Failed to listen on port %s: %v", cfg.Server.ChatGRPCPort, err)
	}

	go func() {
		log.Printf("Chat Service gRPC health listening on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()

	go func() {
		log.Printf("Chat Service HTTP API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	<-ctx.Done()
	log.Println("Shutting down Chat Service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	healthServer.Shutdown()
	consumeCtx.Stop()
	// closes every live socket before the listener goes away
	app.Broker.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	log.Println("Chat Service stopped")
}
