package main

import (
	"net/http"
	_ "net/http/pprof"

	featureConfig "github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/server/grpc"
	"github.com/Meesho/BharatMLStack/feature-server/internal/transformation"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/config"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/etcd"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/logger"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// transform-server evaluates on demand feature views for feature servers whose registry routes
// views to a remote transformation service.
func main() {
	config.InitEnv()
	go func() {
		http.ListenAndServe(":8080", nil)
	}()
	logger.Init()
	metric.Init()
	if viper.GetString("REGISTRY_SOURCE") != featureConfig.SourceFile {
		etcd.Init(etcd.DefaultVersion)
	}
	configManager := featureConfig.NewManagerFromEnv()

	server := grpc.NewServer(grpc.MetricsInterceptor, grpc.RecoveryInterceptor)
	native := transformation.NewNativeTransformer()
	transformation.RegisterTransformationServiceServer(server.GRPCServer, transformation.NewService(configManager, native))

	if err := server.Run(); err != nil {
		log.Panic().Err(err).Msg("Error from running transform-server")
	}
}
