package http

import (
	"encoding/json"
	"net/http"

	"github.com/Meesho/BharatMLStack/feature-server/internal/server/api"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
)

const requestIdHeader = "X-Request-Id"

// RegisterRoutes registers the HTTP API routes mirroring the gRPC serving service
func RegisterRoutes(router *gin.Engine, retriever api.Retriever) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/features/online", handleGetOnlineFeatures(retriever))
	}
}

func handleError(c *gin.Context, err error) {
	code := api.Code(err)
	if code == codes.Internal {
		log.Error().Err(err).Msg("online feature retrieval failed")
	}
	c.JSON(api.HTTPStatus(code), gin.H{
		"error": err.Error(),
		"code":  code.String(),
	})
}

// decodeRequest keeps JSON numbers exact so large integer entity ids are not rounded through float64.
func decodeRequest(c *gin.Context, online *api.OnlineRequest) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	return dec.Decode(online)
}

// handleGetOnlineFeatures handles POST /api/v1/features/online
func handleGetOnlineFeatures(retriever api.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		var online api.OnlineRequest
		if err := decodeRequest(c, &online); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if online.RequestId == "" {
			online.RequestId = c.GetHeader(requestIdHeader)
		}
		req, err := online.ToRequest()
		if err != nil {
			handleError(c, err)
			return
		}
		resp, err := retriever.Retrieve(c.Request.Context(), req)
		if err != nil {
			handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, api.FromResponse(resp))
	}
}
