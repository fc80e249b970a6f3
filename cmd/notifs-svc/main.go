package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"collabhub/internal/common"
	"collabhub/internal/di"
	"collabhub/internal/telemetry"

	"github.com/nats-io/nats.go/jetstream"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// notifs-svc is a worker: it replays the dead-letter ledger and, when
// NOTIFY_WORKER_CONSUME is set, drains the notification queue. Only chat-svc
// holds live sockets, so leave consuming to it whenever it runs.
func main() {
	log.Println("Initializing notification worker...")

	app, cleanup, err := di.InitializeNotifApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer cleanup()
	cfg := app.Config

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	var consumeCtx jetstream.ConsumeContext
	if cfg.Notification.WorkerConsume {
		consumeCtx, err = app.Consumer.Start(ctx, app.JetStream, cfg.NATS)
		if err != nil {
			log.Fatalf("Failed to start notification consumer: %v", err)
		}
	} else {
		log.Println("NOTIFY_WORKER_CONSUME not set, leaving the queue to chat-svc")
	}

	if app.Replayer != nil {
		go app.Replayer.Run(ctx, cfg.Notification.ReplayInterval)
	}

	grpcServer, healthServer := common.NewGRPCServer(app.TokenParser)
	lis, err := net.Listen("tcp", ":"+cfg.Server.NotifGRPCPort)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC health server listening on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	<-ctx.Done()
	log.Println("Shutting down server...")

	healthServer.Shutdown()
	if consumeCtx != nil {
		consumeCtx.Stop()
	}
	grpcServer.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
