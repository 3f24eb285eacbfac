package main

import (
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"

	featureConfig "github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/data/repositories/provider"
	"github.com/Meesho/BharatMLStack/feature-server/internal/featurelog"
	cbhandler "github.com/Meesho/BharatMLStack/feature-server/internal/handler/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/feature"
	"github.com/Meesho/BharatMLStack/feature-server/internal/server/grpc"
	httpserver "github.com/Meesho/BharatMLStack/feature-server/internal/server/http"
	"github.com/Meesho/BharatMLStack/feature-server/internal/server/mux"
	"github.com/Meesho/BharatMLStack/feature-server/internal/transformation"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/config"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/etcd"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/infra"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/logger"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

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
	infra.InitDBConnectors()
	provider.InitStorageProvider(configManager)

	native := transformation.NewNativeTransformer()
	transformCB := cbhandler.NewHandler(circuitbreaker.GetManager(cbhandler.TransformationManager))
	router := transformation.NewRouter(native, transformation.GRPCDialer(transformCB))

	featureLog := featurelog.InitFeatureLogger()
	var sink feature.FeatureLogger
	if featureLog != nil {
		sink = featureLog
	}
	retriever := feature.InitRetrieveHandler(configManager, router, sink)

	grpc.Init(configManager, retriever)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutting down feature-server")
		grpc.Instance().Shutdown()
		featureLog.Close()
		os.Exit(0)
	}()

	enableHTTPStr := strings.ToLower(strings.TrimSpace(viper.GetString("ENABLE_HTTP_API")))
	if enableHTTPStr == "true" || enableHTTPStr == "1" {
		log.Info().Msg("HTTP API mode enabled - starting HTTP and gRPC servers via cmux")
		httpserver.Init(configManager, retriever)
		server, err := mux.Init()
		if err != nil {
			log.Panic().Err(err).Msg("Failed to start the application")
		}
		if err := server.Run(); err != nil {
			log.Panic().Err(err).Msg("Error from running cmux server")
		}
		return
	}

	log.Info().Msg("gRPC API mode enabled (default)")
	if err := grpc.Instance().Run(); err != nil {
		log.Panic().Err(err).Msg("Error from running feature-server api-server")
	}
}
