package server

import (
	"net/http"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/gin-gonic/gin"
	"github.com/stakebatch/batch-deposit-service/utils"
)

const traceIDHeader = "X-Trace-Id"

// traceMiddleware attaches a trace ID to the request context, reusing the one sent by the client
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithTraceID(c.Request.Context(), c.GetHeader(traceIDHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(traceIDHeader, utils.GetTraceID(ctx))
		c.Next()
	}
}

func requestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// Actual process of the request
		c.Next()

		duration := time.Since(startTime)
		log.Infof("traceID[%v] method[%v] path[%v] status[%v] errors[%v] processTime[%v]", utils.GetTraceID(c.Request.Context()),
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.Errors.String(), duration.String())
	}
}

// corsMiddleware allows Cross Origin Resource Sharing from any origin.
// Don't do this without consideration in production systems.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Origin", origin)
		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.Header("Access-Control-Allow-Headers", "*")
			c.Header("Access-Control-Allow-Methods", "*")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
