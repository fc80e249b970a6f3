package common

import (
	"context"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

var publicMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/List":  true,
}

// NewGRPCServer builds the operational gRPC server each service exposes:
// health checking, reflection, tracing and request logging.
func NewGRPCServer(parser *TokenParser) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(LoggingUnaryInterceptor, AuthInterceptor(parser)),
		grpc.StreamInterceptor(LoggingStreamInterceptor),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	return server, healthServer
}

// AuthInterceptor injects the Caller for every non-public unary method.
func AuthInterceptor(parser *TokenParser) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md["authorization"]
		if len(vals) == 0 {
			return nil, status.Error(codes.Unauthenticated, "authorization required")
		}

		parts := strings.Fields(vals[0])
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return nil, status.Error(codes.Unauthenticated, "invalid auth header")
		}

		caller, err := parser.ParseToken(parts[1])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}

		return handler(WithCaller(ctx, caller), req)
	}
}

func LoggingUnaryInterceptor(ctx context.Context, req interface{},
	info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	start := time.Now()
	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		log.Printf("%s failed (%v): %v", info.FullMethod, duration, err)
	} else {
		log.Printf("%s completed (%v)", info.FullMethod, duration)
	}
	return resp, err
}

func LoggingStreamInterceptor(srv interface{}, stream grpc.ServerStream,
	info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {

	log.Printf("%s stream started", info.FullMethod)
	err := handler(srv, stream)
	if err != nil {
		log.Printf("%s stream ended with error: %v", info.FullMethod, err)
	} else {
		log.Printf("%s stream completed", info.FullMethod)
	}
	return err
}
