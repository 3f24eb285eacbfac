package http

import (
	"net/http"
	"sync"

	"github.com/Meesho/BharatMLStack/feature-server/internal/server/api"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	router *gin.Engine
	once   sync.Once
)

func Init(clients api.ClientRegistry, retriever api.Retriever) {
	once.Do(func() {
		env := viper.GetString("APP_ENV")
		if env == "prod" || env == "production" {
			gin.SetMode(gin.ReleaseMode)
		}
		router = NewRouter(clients, retriever)
	})
}

func NewRouter(clients api.ClientRegistry, retriever api.Retriever) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(MetricsMiddleware())
	r.Use(AuthMiddleware(clients))

	r.GET(healthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "true"})
	})
	RegisterRoutes(r, retriever)
	return r
}

func Instance() *gin.Engine {
	if router == nil {
		log.Fatal().Msg("Router not initialized")
	}
	return router
}
