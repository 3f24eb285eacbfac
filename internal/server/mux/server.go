package mux

import (
	"net"
	"net/http"
	"strconv"

	"github.com/Meesho/BharatMLStack/feature-server/internal/server/grpc"
	httpserver "github.com/Meesho/BharatMLStack/feature-server/internal/server/http"
	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
	"github.com/spf13/viper"
)

// Server handles multiplexing HTTP and gRPC on the same port
type Server struct {
	mux  cmux.CMux
	port int
}

// Init listens on APP_PORT. Both the gRPC and HTTP servers must be initialized before Run.
func Init() (*Server, error) {
	if !viper.IsSet("APP_PORT") {
		log.Panic().Msgf("Failed to start the application - APP_PORT is not set")
	}
	port := viper.GetInt("APP_PORT")

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, err
	}
	return &Server{mux: cmux.New(listener), port: port}, nil
}

func (s *Server) Run() error {
	httpListener := s.mux.Match(cmux.HTTP1Fast())
	grpcListener := s.mux.Match(cmux.HTTP2(), cmux.HTTP2HeaderField("content-type", "application/grpc"), cmux.Any())

	go func() {
		if err := http.Serve(httpListener, httpserver.Instance()); err != nil {
			log.Panic().Msgf("Failed to serve HTTP server: %v", err)
		}
	}()

	grpcServer := grpc.Instance().GRPCServer
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Panic().Msgf("Failed to serve gRPC server: %v", err)
		}
	}()

	log.Info().Int("port", s.port).Msg("HTTP and gRPC servers started via cmux")
	return s.mux.Serve()
}
