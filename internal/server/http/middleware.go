package http

import (
	"strconv"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/server/api"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/gin-gonic/gin"
)

const (
	healthPath = "/health/self"

	httpRequestsTotal  = "http_server_requests_total"
	httpRequestLatency = "http_server_request_latency"
)

// AuthMiddleware validates authentication headers
func AuthMiddleware(clients api.ClientRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == healthPath {
			c.Next()
			return
		}

		callerId := c.GetHeader(api.CallerIdHeader)
		authToken := c.GetHeader(api.AuthTokenHeader)

		if callerId == "" {
			c.AbortWithStatusJSON(400, gin.H{"error": api.CallerIdHeader + " header is missing"})
			return
		}
		if authToken == "" {
			c.AbortWithStatusJSON(400, gin.H{"error": api.AuthTokenHeader + " header is missing"})
			return
		}
		if !api.IsAuthorized(clients, callerId, authToken) {
			c.AbortWithStatusJSON(401, gin.H{"error": "Invalid auth token"})
			return
		}

		c.Next()
	}
}

// MetricsMiddleware reports request counts and latency per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		tags := metric.BuildTag(
			metric.NewTag(metric.TagPath, path),
			metric.NewTag(metric.TagMethod, c.Request.Method),
			metric.NewTag(metric.TagCallerId, c.GetHeader(api.CallerIdHeader)),
			metric.NewTag(metric.TagHttpStatusCode, strconv.Itoa(c.Writer.Status())),
			metric.NewTag(metric.TagCommunicationProtocol, metric.TagValueCommunicationProtocolHttp),
		)
		metric.Incr(httpRequestsTotal, tags)
		metric.Timing(httpRequestLatency, time.Since(start), tags)
	}
}
