package grpc

import (
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/Meesho/BharatMLStack/feature-server/internal/server/api"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	GRPCServer  *grpc.Server
	HTTPHandler *gin.Engine
	health      *health.Server
}

var (
	server *Server
	once   sync.Once
)

// Init builds the serving gRPC server with authentication, metrics and recovery middleware.
func Init(clients api.ClientRegistry, retriever api.Retriever) {
	once.Do(func() {
		server = NewServer(ServerInterceptor(clients), RecoveryInterceptor)
		RegisterServingServiceServer(server.GRPCServer, NewServingService(retriever))
	})
}

// NewServer creates a gRPC server with health and reflection services registered, and a Gin router
// answering /health/self for HTTP probes on the same port.
func NewServer(interceptors ...grpc.UnaryServerInterceptor) *Server {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	env := viper.GetString("APP_ENV")
	if env == "prod" || env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.GET("/health/self", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "true"})
	})

	return &Server{
		GRPCServer:  grpcServer,
		HTTPHandler: router,
		health:      healthServer,
	}
}

// Run starts the cmux multiplexer (Mux) to handle incoming connections and route them to the appropriate servers
func (server *Server) Run() error {
	if !viper.IsSet("APP_PORT") {
		log.Panic().Msgf("Failed to start the application - APP_PORT is not set")
	}
	port := viper.GetInt("APP_PORT")

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		log.Panic().Msgf("Failed to start the application - Failed to listen: %v", err)
	}

	// Create a cmux multiplexer that will multiplex 2 protocols on same port
	mux := cmux.New(listener)
	httpListener := mux.Match(cmux.HTTP1Fast())
	grpcListener := mux.Match(cmux.HTTP2(), cmux.HTTP2HeaderField("content-type", "application/grpc"), cmux.Any())

	go func() {
		if err := server.GRPCServer.Serve(grpcListener); err != nil {
			log.Panic().Msgf("Failed to serve gRPC server: %v", err)
		}
	}()
	go func() {
		if err := http.Serve(httpListener, server.HTTPHandler); err != nil {
			log.Panic().Msgf("Failed to serve HTTP server: %v", err)
		}
	}()

	log.Info().Int("port", port).Msg("gRPC server started")
	return mux.Serve()
}

// Shutdown reports NOT_SERVING to health checks and drains in-flight calls.
func (server *Server) Shutdown() {
	server.health.Shutdown()
	server.GRPCServer.GracefulStop()
}

// Instance returns the grpc instance
func Instance() *Server {
	if server == nil {
		log.Panic().Msg("Server not initialized, call Init first")
	}
	return server
}
